// Package store defines the message store contract. Implementations live in
// subpackages; callers only ever see this interface and cannot tell which
// storage tier answered a read.
package store

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// DefaultRoom is the single room served in this deployment.
	DefaultRoom = "main"

	// MaxBodyLen bounds the message body, in runes, after trimming.
	MaxBodyLen = 500

	// DefaultRecentLimit is used when a caller asks for recent history
	// without a limit.
	DefaultRecentLimit = 50

	// MaxListLimit caps both recent history and paginated reads.
	MaxListLimit = 100
)

var (
	// ErrNotFound is returned when operating on a message that does not exist.
	ErrNotFound = errors.New("message not found")

	// ErrInvalidBody rejects empty or oversized message bodies.
	ErrInvalidBody = errors.New("invalid message body")

	// ErrUnavailable signals the store cannot currently accept or serve.
	ErrUnavailable = errors.New("message store unavailable")
)

// Message is a persisted chat message. Once appended it is immutable except
// for the soft-delete flag and the deleter reference.
type Message struct {
	ID        string
	Room      string
	Body      string
	Username  string
	IsAdmin   bool
	CreatedAt time.Time
	Deleted   bool
	DeletedBy string
}

// Stats aggregates message counts for the statistics endpoint.
type Stats struct {
	Total   int64
	Today   int64
	Deleted int64
}

// Store is the message store. All operations are safe for concurrent use;
// each operation is atomic with respect to itself.
type Store interface {
	// Append durably records a message, assigning identifier and timestamp
	// when absent. It returns only after the message survives a crash.
	Append(ctx context.Context, msg Message) (Message, error)

	// Recent returns up to limit non-deleted messages for the room, oldest
	// first. A non-positive limit means DefaultRecentLimit.
	Recent(ctx context.Context, room string, limit int) ([]Message, error)

	// List pages through non-deleted messages, oldest first, and reports
	// the total number of matching messages.
	List(ctx context.Context, room string, limit, skip int) ([]Message, int64, error)

	// SoftDelete hides a message without removing it. Deleting an already
	// deleted message succeeds; a missing message yields ErrNotFound.
	SoftDelete(ctx context.Context, id, deletedBy string) error

	// Count reports the number of messages in the room.
	Count(ctx context.Context, room string, includeDeleted bool) (int64, error)

	// Stats aggregates total, today and deleted counts across rooms.
	Stats(ctx context.Context) (Stats, error)

	Close() error
}

// ValidateBody trims whitespace and enforces the body constraints.
func ValidateBody(body string) (string, error) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" || utf8.RuneCountInString(trimmed) > MaxBodyLen {
		return "", ErrInvalidBody
	}
	return trimmed, nil
}

// ClampLimit normalizes a caller-supplied limit.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultRecentLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
