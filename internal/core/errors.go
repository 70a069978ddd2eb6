package core

import "fmt"

// Error codes for domain errors reported privately to a connection.
const (
	ErrCodeInvalidMessage     = "invalid_message"
	ErrCodePermissionDenied   = "permission_denied"
	ErrCodeChatDisabled       = "chat_disabled"
	ErrCodeGuestsNotAllowed   = "guests_not_allowed"
	ErrCodeAwaitingModeration = "awaiting_moderation"
	ErrCodeSlowMode           = "slow_mode"
	ErrCodeMessageNotFound    = "message_not_found"
	ErrCodeStoreUnavailable   = "store_unavailable"
	ErrCodeBadRequest         = "bad_request"
)

// Error wraps a code and human-readable message.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func coreError(code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// DeliveryError is reported by a connection's send function. Permanent
// failures mean the peer is gone and the connection must be pruned;
// transient failures are logged and left for the next broadcast.
type DeliveryError struct {
	Permanent bool
	Err       error
}

func (e *DeliveryError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("%s delivery failure: %v", kind, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
