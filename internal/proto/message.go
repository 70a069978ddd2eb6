// Package proto defines the wire envelopes exchanged over the persistent
// connection. Connect and disconnect are transport lifecycle signals and
// have no envelope.
package proto

import (
	"encoding/json"
	"time"
)

// Inbound is the envelope for actions coming from the client.
type Inbound struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

const (
	ActionPost   = "post"
	ActionJoin   = "join"
	ActionDelete = "delete"
)

// PostData carries a post attempt.
type PostData struct {
	Text string `json:"text"`
}

// DeleteData identifies the message a moderator wants removed.
type DeleteData struct {
	ID string `json:"id"`
}

// Outbound is the envelope for events sent to the client.
type Outbound struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

const (
	TypeMessage        = "message"
	TypeMessageDeleted = "messageDeleted"
	TypeMessageHistory = "messageHistory"
	TypeUserCount      = "userCount"
	TypeError          = "error"
)

// MessagePayload is broadcast for every accepted message and repeated,
// oldest first, inside messageHistory.
type MessagePayload struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Username  string    `json:"username"`
	IsAdmin   bool      `json:"isAdmin"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageDeletedPayload carries only the identifier of a removed message.
type MessageDeletedPayload struct {
	ID string `json:"id"`
}

// ErrorPayload is delivered privately to the originating connection only.
type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
