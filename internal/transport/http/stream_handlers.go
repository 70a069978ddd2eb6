package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/finlive/streamchat-server/internal/stream"
)

// StreamHandlers exposes the stream configuration service over REST.
type StreamHandlers struct {
	stream stream.Service
	log    *zerolog.Logger
}

// NewStreamHandlers creates the stream REST handlers.
func NewStreamHandlers(sv stream.Service, logger *zerolog.Logger) *StreamHandlers {
	return &StreamHandlers{stream: sv, log: logger}
}

// StreamInfoResponse is the public view of the stream state.
type StreamInfoResponse struct {
	Settings       SettingsPayload `json:"settings"`
	ViewerCount    int64           `json:"viewerCount"`
	MaxViewerCount int64           `json:"maxViewerCount"`
}

// SettingsPayload is the wire shape of the broadcast settings.
type SettingsPayload struct {
	ChatEnabled          bool `json:"chatEnabled"`
	AllowGuests          bool `json:"allowGuests"`
	ModerateMessages     bool `json:"moderateMessages"`
	SlowMode             bool `json:"slowMode"`
	SlowModeDelaySeconds int  `json:"slowModeDelaySeconds"`
}

// Info handles GET /api/stream/info.
func (h *StreamHandlers) Info(c *gin.Context) {
	ctx := c.Request.Context()

	settings, err := h.stream.Settings(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to read stream settings")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "stream settings unavailable"})
		return
	}

	counts, err := h.stream.Counts(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to read viewer counts")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "viewer counts unavailable"})
		return
	}

	c.JSON(http.StatusOK, StreamInfoResponse{
		Settings:       settingsPayload(settings),
		ViewerCount:    counts.Viewers,
		MaxViewerCount: counts.MaxViewers,
	})
}

// UpdateSettings handles PUT /api/stream/settings (admin only).
func (h *StreamHandlers) UpdateSettings(c *gin.Context) {
	var req SettingsPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	settings := stream.Settings{
		ChatEnabled:      req.ChatEnabled,
		AllowGuests:      req.AllowGuests,
		ModerateMessages: req.ModerateMessages,
		SlowMode:         req.SlowMode,
		SlowModeDelay:    time.Duration(req.SlowModeDelaySeconds) * time.Second,
	}
	if settings.SlowModeDelay <= 0 {
		settings.SlowModeDelay = 10 * time.Second
	}

	if err := h.stream.UpdateSettings(c.Request.Context(), settings); err != nil {
		h.log.Error().Err(err).Msg("failed to update stream settings")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, settingsPayload(settings))
}

func settingsPayload(s stream.Settings) SettingsPayload {
	return SettingsPayload{
		ChatEnabled:          s.ChatEnabled,
		AllowGuests:          s.AllowGuests,
		ModerateMessages:     s.ModerateMessages,
		SlowMode:             s.SlowMode,
		SlowModeDelaySeconds: int(s.SlowModeDelay / time.Second),
	}
}
