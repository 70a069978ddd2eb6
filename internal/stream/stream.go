// Package stream is the client side of the external stream configuration
// service: broadcast settings plus the best-effort viewer counters. The
// counters are commutative and approximate; the only guarantee is that the
// viewer count never goes negative.
package stream

import (
	"context"
	"time"
)

// Settings gates chat behavior for the live stream.
type Settings struct {
	ChatEnabled      bool          `json:"chatEnabled"`
	AllowGuests      bool          `json:"allowGuests"`
	ModerateMessages bool          `json:"moderateMessages"`
	SlowMode         bool          `json:"slowMode"`
	SlowModeDelay    time.Duration `json:"slowModeDelaySeconds"`
}

// DefaultSettings matches a freshly started stream: open chat, guests
// welcome, no moderation queue, no slow mode.
func DefaultSettings() Settings {
	return Settings{
		ChatEnabled:   true,
		AllowGuests:   true,
		SlowModeDelay: 10 * time.Second,
	}
}

// Counts holds the current and maximum viewer counters.
type Counts struct {
	Viewers    int64 `json:"viewerCount"`
	MaxViewers int64 `json:"maxViewerCount"`
}

// Service is the stream configuration contract the core depends on.
type Service interface {
	// Settings returns the current broadcast settings.
	Settings(ctx context.Context) (Settings, error)

	// UpdateSettings replaces the broadcast settings.
	UpdateSettings(ctx context.Context, s Settings) error

	// IncViewers bumps the viewer counter and maintains the high-water
	// mark. Returns the new count.
	IncViewers(ctx context.Context) (int64, error)

	// DecViewers lowers the viewer counter, clamped at zero. Returns the
	// new count.
	DecViewers(ctx context.Context) (int64, error)

	// Counts returns the current and maximum viewer counters.
	Counts(ctx context.Context) (Counts, error)
}
