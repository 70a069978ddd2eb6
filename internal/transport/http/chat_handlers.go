package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/finlive/streamchat-server/internal/core"
	"github.com/finlive/streamchat-server/internal/proto"
	"github.com/finlive/streamchat-server/internal/store"
)

// ChatHandlers serves the read-only history/statistics surface plus the
// moderator delete endpoint.
type ChatHandlers struct {
	store       store.Store
	coordinator *core.Coordinator
	log         *zerolog.Logger
}

// NewChatHandlers creates the chat REST handlers.
func NewChatHandlers(st store.Store, coordinator *core.Coordinator, logger *zerolog.Logger) *ChatHandlers {
	return &ChatHandlers{store: st, coordinator: coordinator, log: logger}
}

// MessagesResponse is the paginated message listing.
type MessagesResponse struct {
	Data       []proto.MessagePayload `json:"data"`
	Pagination Pagination             `json:"pagination"`
}

// Pagination echoes the applied window and total matching messages.
type Pagination struct {
	Limit int   `json:"limit"`
	Skip  int   `json:"skip"`
	Total int64 `json:"total"`
}

// StatsResponse aggregates message counts.
type StatsResponse struct {
	TotalMessages   int64     `json:"totalMessages"`
	TodayMessages   int64     `json:"todayMessages"`
	DeletedMessages int64     `json:"deletedMessages"`
	GeneratedAt     time.Time `json:"generatedAt"`
}

// Messages handles GET /api/chat/messages?limit&skip.
func (h *ChatHandlers) Messages(c *gin.Context) {
	limit := intQuery(c, "limit", store.DefaultRecentLimit)
	skip := intQuery(c, "skip", 0)

	msgs, total, err := h.store.List(c.Request.Context(), store.DefaultRoom, limit, skip)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list messages")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "message store unavailable"})
		return
	}

	payload := make([]proto.MessagePayload, 0, len(msgs))
	for _, msg := range msgs {
		payload = append(payload, messagePayload(msg))
	}

	c.JSON(http.StatusOK, MessagesResponse{
		Data: payload,
		Pagination: Pagination{
			Limit: store.ClampLimit(limit),
			Skip:  maxInt(skip, 0),
			Total: total,
		},
	})
}

// Stats handles GET /api/chat/stats (admin only).
func (h *ChatHandlers) Stats(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to read chat stats")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "message store unavailable"})
		return
	}

	c.JSON(http.StatusOK, StatsResponse{
		TotalMessages:   stats.Total,
		TodayMessages:   stats.Today,
		DeletedMessages: stats.Deleted,
		GeneratedAt:     time.Now(),
	})
}

// Delete handles DELETE /api/chat/messages/:id (moderator or admin). The
// deletion event is broadcast exactly as for the websocket delete action.
func (h *ChatHandlers) Delete(c *gin.Context) {
	messageID := c.Param("id")
	identity := identityFrom(c)
	if identity == nil {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "insufficient role"})
		return
	}

	err := h.coordinator.DeleteByID(c.Request.Context(), messageID, identity.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "message not found"})
			return
		}
		h.log.Error().Err(err).Str("message_id", messageID).Msg("failed to delete message")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
