package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/finlive/streamchat-server/internal/auth"
	"github.com/finlive/streamchat-server/internal/config"
	"github.com/finlive/streamchat-server/internal/core"
	"github.com/finlive/streamchat-server/internal/store"
	"github.com/finlive/streamchat-server/internal/store/fastcache"
	"github.com/finlive/streamchat-server/internal/store/sqlite"
	"github.com/finlive/streamchat-server/internal/store/tiered"
	"github.com/finlive/streamchat-server/internal/stream"
	transporthttp "github.com/finlive/streamchat-server/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	store           store.Store
	streamCloser    func() error
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	durable, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init durable store: %w", err)
	}

	cache, err := fastcache.New(cfg.CachePath, cfg.CacheTTL, logger)
	if err != nil {
		durable.Close()
		return nil, fmt.Errorf("init fast cache: %w", err)
	}

	st := tiered.New(durable, cache, logger)
	logger.Info().
		Str("db_path", cfg.DatabasePath).
		Str("cache_path", cfg.CachePath).
		Msg("message store initialized")

	var (
		sv           stream.Service
		streamCloser func() error
	)
	if cfg.RedisAddr != "" {
		redisStream, err := stream.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("init stream service: %w", err)
		}
		sv = redisStream
		streamCloser = redisStream.Close
		logger.Info().Str("redis_addr", cfg.RedisAddr).Msg("stream service: redis")
	} else {
		sv = stream.NewMemory(stream.DefaultSettings())
		logger.Info().Msg("stream service: in-memory")
	}

	verifier := auth.NewVerifier(&auth.Config{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		Leeway:   time.Minute,
	})

	registry := core.NewRegistry()
	fanout := core.NewFanout(registry, logger, cfg.DeliveryTimeout, cfg.FanoutWorkers)
	coordinator := core.NewCoordinator(registry, st, sv, fanout, logger)

	server := transporthttp.NewServer(coordinator, verifier, st, sv, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		store:           st,
		streamCloser:    streamCloser,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes the store and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		}
	}
	if a.streamCloser != nil {
		if err := a.streamCloser(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close stream service")
		}
	}
}
