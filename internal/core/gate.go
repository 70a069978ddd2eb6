package core

import (
	"time"

	"github.com/finlive/streamchat-server/internal/auth"
	"github.com/finlive/streamchat-server/internal/stream"
)

// GateInput is everything the moderation gate needs to decide a post
// attempt. The gate never performs I/O; the session coordinator supplies
// all inputs, including the sender's last accepted post time.
type GateInput struct {
	Role          auth.Role
	Authenticated bool
	Settings      stream.Settings
	LastPost      time.Time
	Now           time.Time
}

// Decision is the gate's verdict. A denied decision carries the error code
// and the reason reported privately to the sender. Withhold marks the
// awaiting-moderation outcome: the message is still accepted into the
// store but must not be broadcast.
type Decision struct {
	Allowed  bool
	Withhold bool
	Code     string
	Reason   string
}

// CheckPost applies the moderation decision table.
func CheckPost(in GateInput) Decision {
	if !in.Settings.ChatEnabled {
		return Decision{Code: ErrCodeChatDisabled, Reason: "chat disabled"}
	}
	if !in.Authenticated && !in.Settings.AllowGuests {
		return Decision{Code: ErrCodeGuestsNotAllowed, Reason: "guests not allowed"}
	}
	if in.Settings.ModerateMessages && !in.Role.CanModerate() {
		return Decision{Withhold: true, Code: ErrCodeAwaitingModeration, Reason: "awaiting moderation"}
	}
	if in.Settings.SlowMode && !in.LastPost.IsZero() && in.Now.Sub(in.LastPost) < in.Settings.SlowModeDelay {
		return Decision{Code: ErrCodeSlowMode, Reason: "slow mode"}
	}
	return Decision{Allowed: true}
}
