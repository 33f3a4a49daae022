package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/campusride/ridechat-server/internal/auth"
	"github.com/campusride/ridechat-server/internal/config"
	"github.com/campusride/ridechat-server/internal/core"
	"github.com/campusride/ridechat-server/internal/relay"
	"github.com/campusride/ridechat-server/internal/store"
	"github.com/campusride/ridechat-server/internal/store/sqlite"
	transporthttp "github.com/campusride/ridechat-server/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	relay           *relay.Redis
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt_secret is required")
	}

	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	verifier := auth.NewVerifier(&auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      24 * time.Hour,
	}, cfg.AuthTimeout)

	var (
		redisRelay *relay.Redis
		hubRelay   core.Relay
	)
	if cfg.RedisAddr != "" {
		redisRelay, err = relay.NewRedis(cfg.RedisAddr, "", logger)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("init relay: %w", err)
		}
		hubRelay = redisRelay
		logger.Info().Str("redis_addr", cfg.RedisAddr).Msg("cross-instance relay enabled")
	}

	hub := core.NewHub(st, st, hubRelay, core.HubConfig{
		RequireMembership: cfg.RequireRideMembership,
		StoreTimeout:      cfg.StoreTimeout,
		MaxMessageLen:     cfg.MaxMessageLength,
	}, logger)

	server := transporthttp.NewServer(hub, verifier, st, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           st,
		relay:           redisRelay,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go a.hub.Run(ctx)
	if a.relay != nil {
		go a.relay.Run(ctx)
	}

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

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.relay != nil {
		if err := a.relay.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close relay")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
