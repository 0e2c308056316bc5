package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/VampKunal/IdeaRoom/internal/api"
	"github.com/VampKunal/IdeaRoom/internal/api/middleware"
	"github.com/VampKunal/IdeaRoom/internal/config"
	"github.com/VampKunal/IdeaRoom/internal/directory"
	"github.com/VampKunal/IdeaRoom/internal/eventlog"
	"github.com/VampKunal/IdeaRoom/internal/gateway"
	"github.com/VampKunal/IdeaRoom/internal/handlers"
	"github.com/VampKunal/IdeaRoom/internal/identity"
	"github.com/VampKunal/IdeaRoom/internal/processor"
	"github.com/VampKunal/IdeaRoom/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	if err := cfg.ValidateServer(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()

	// Initialize Redis store (room state and presence)
	redisStore, err := store.NewRedisStore(ctx, cfg.RedisURL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer redisStore.Close()
	logger.Info().Msg("connected to Redis")

	// Snapshot store is optional here; it backs the read endpoints only
	snapshots, err := store.OpenSnapshotStore(ctx, store.SnapshotConfig{
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
		PebbleDir:   cfg.PebbleDir,
	})
	switch {
	case errors.Is(err, store.ErrNoSnapshotStore):
		logger.Info().Msg("no snapshot store configured, snapshot endpoints disabled")
	case err != nil:
		logger.Fatal().Err(err).Msg("snapshot store connection failed")
	default:
		defer snapshots.Close()
		logger.Info().Msg("connected to snapshot store")
	}

	// Durable event log
	var events eventlog.Publisher
	logCfg := eventlog.Config{URL: cfg.EventLogURL, Queue: cfg.EventQueue}
	if eventlog.IsAMQP(cfg.EventLogURL) {
		events = eventlog.NewAMQP(logCfg, logger)
		logger.Info().Str("queue", cfg.EventQueue).Msg("publishing events to AMQP")
	} else {
		events = eventlog.NewRedisStream(redisStore.Client(), logCfg, logger)
		logger.Info().Str("stream", cfg.EventQueue).Msg("publishing events to Redis stream")
	}
	defer events.Close()

	// Boundary services
	var dir directory.Directory = directory.Static{}
	if cfg.RoomDirectoryURL != "" {
		dir = directory.NewHTTPDirectory(cfg.RoomDirectoryURL, 5*time.Second)
	} else {
		logger.Warn().Msg("ROOM_DIRECTORY_URL not set, every room id is accepted")
	}

	var verifier identity.Verifier
	if cfg.AuthSecret != "" {
		v, err := identity.NewJWTVerifier([]byte(cfg.AuthSecret))
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid AUTH_SECRET")
		}
		verifier = v
	}

	// Realtime core
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	hub := gateway.NewHub(logger)
	go hub.Run(hubCtx)

	proc := processor.New(redisStore, events, processor.Config{
		HistoryLimit: cfg.HistoryLimit,
		IdleTimeout:  cfg.RoomIdleTimeout,
		Timeout:      cfg.MutationTimeout,
		OnCommit:     hub.Committed,
	}, logger)

	gw := gateway.New(hub, redisStore, proc, dir, verifier, gateway.Config{
		AllowedOrigins: cfg.CORSOrigins,
		AuthRequired:   cfg.AuthRequired,
		MutationRate:   cfg.WSMutationRate,
		MutationBurst:  cfg.WSMutationBurst,
	}, logger)

	// Create router
	router := api.NewRouter(logger, api.Options{
		Realtime:     gw,
		Handler:      handlers.NewHandler(redisStore, snapshots, gw, proc),
		Redis:        redisStore.Client(),
		Verifier:     verifier,
		AuthRequired: cfg.AuthRequired,
		RateLimit: middleware.RateLimiterConfig{
			Whitelist:        cfg.RateLimitWhitelist,
			AutoBlockEnabled: cfg.AutoBlockEnabled,
		},
		CORSOrigins: cfg.CORSOrigins,
	})

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting IdeaRoom sync server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	// Close websockets, then let queued mutations finish
	stopHub()
	proc.Close()

	logger.Info().Msg("server stopped")
}
