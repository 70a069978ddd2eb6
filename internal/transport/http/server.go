package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/finlive/streamchat-server/internal/auth"
	"github.com/finlive/streamchat-server/internal/config"
	"github.com/finlive/streamchat-server/internal/core"
	"github.com/finlive/streamchat-server/internal/store"
	"github.com/finlive/streamchat-server/internal/stream"
)

// NewServer builds the HTTP server: websocket endpoint, REST query surface,
// health and metrics.
func NewServer(coordinator *core.Coordinator, verifier *auth.Verifier, st store.Store, sv stream.Service, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", gin.WrapH(NewWSHandler(coordinator, verifier, cfg, logger)))

	chat := NewChatHandlers(st, coordinator, logger)
	streamH := NewStreamHandlers(sv, logger)

	api := router.Group("/api")
	{
		api.GET("/chat/messages", chat.Messages)
		api.GET("/stream/info", streamH.Info)

		authed := api.Group("", AuthMiddleware(verifier, logger))
		{
			authed.GET("/chat/stats", RequireAdmin(), chat.Stats)
			authed.DELETE("/chat/messages/:id", RequireModerator(), chat.Delete)
			authed.PUT("/stream/settings", RequireAdmin(), streamH.UpdateSettings)
		}
	}

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
