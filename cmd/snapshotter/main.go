package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/VampKunal/IdeaRoom/internal/config"
	"github.com/VampKunal/IdeaRoom/internal/eventlog"
	"github.com/VampKunal/IdeaRoom/internal/snapshot"
	"github.com/VampKunal/IdeaRoom/internal/store"
)

func main() {
	metricsAddr := flag.String("metrics-addr", ":9091", "address for the Prometheus metrics endpoint")
	flag.Parse()

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

	if err := cfg.ValidateSnapshotter(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Snapshot store is required here
	snapshots, err := store.OpenSnapshotStore(ctx, store.SnapshotConfig{
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
		PebbleDir:   cfg.PebbleDir,
	})
	if errors.Is(err, store.ErrNoSnapshotStore) && cfg.IsDevelopment() {
		logger.Warn().Msg("no snapshot store configured, using ./data/idearoom.db")
		snapshots, err = store.NewSQLiteStore(ctx, "")
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("snapshot store connection failed")
	}
	defer snapshots.Close()

	// Event log consumer
	var consumer eventlog.Consumer
	logCfg := eventlog.Config{URL: cfg.EventLogURL, Queue: cfg.EventQueue}
	if cfg.UsesAMQP() {
		consumer = eventlog.NewAMQP(logCfg, logger)
	} else {
		redisStore, err := store.NewRedisStore(ctx, cfg.RedisURL, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		consumer = eventlog.NewRedisStream(redisStore.Client(), logCfg, logger)
	}
	defer consumer.Close()

	builder := snapshot.NewBuilder(snapshots, cfg.SnapshotBatchSize, logger)

	// Metrics endpoint (for Prometheus scraping)
	metricsSrv := &http.Server{Addr: *metricsAddr, Handler: promhttp.Handler(), ReadTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()

	// Heartbeat with the partial batches held in memory
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				buffered := builder.Buffered()
				var total int64
				for _, n := range buffered {
					total += int64(n)
				}
				logger.Info().
					Int("rooms", len(buffered)).
					Str("buffered_events", humanize.Comma(total)).
					Msg("snapshotter alive")
			}
		}
	}()

	logger.Info().
		Str("queue", cfg.EventQueue).
		Int("batch_size", cfg.SnapshotBatchSize).
		Msg("starting snapshot builder")

	if err := builder.Run(ctx, consumer); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("snapshot builder stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	metricsSrv.Shutdown(shutdownCtx)

	logger.Info().Msg("snapshotter stopped")
}
