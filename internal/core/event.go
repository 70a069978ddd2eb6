package core

import "github.com/finlive/streamchat-server/internal/store"

// EventKind is a notification the core emits to connections.
type EventKind int

const (
	// EventMessage carries an accepted chat message, broadcast to all.
	EventMessage EventKind = iota
	// EventMessageDeleted announces a soft-deleted message by id, broadcast to all.
	EventMessageDeleted
	// EventHistory delivers recent history privately on join.
	EventHistory
	// EventUserCount carries the current viewer count.
	EventUserCount
	// EventError reports a domain error privately to one connection.
	EventError
)

// Event describes what happened in the system.
type Event struct {
	Kind      EventKind
	Message   *store.Message
	MessageID string
	History   []store.Message
	UserCount int64
	Err       *Error
}

func messageEvent(msg store.Message) Event {
	return Event{Kind: EventMessage, Message: &msg}
}

func deletedEvent(id string) Event {
	return Event{Kind: EventMessageDeleted, MessageID: id}
}

func historyEvent(msgs []store.Message) Event {
	return Event{Kind: EventHistory, History: msgs}
}

func userCountEvent(n int64) Event {
	return Event{Kind: EventUserCount, UserCount: n}
}

func errorEvent(code, msg string) Event {
	return Event{Kind: EventError, Err: coreError(code, msg)}
}

// NewErrorEvent builds a private error event; the transport uses it for
// protocol-level failures that never reach the coordinator.
func NewErrorEvent(code, msg string) Event {
	return errorEvent(code, msg)
}
