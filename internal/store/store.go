package store

import (
	"context"
	"errors"
	"time"

	"github.com/VampKunal/IdeaRoom/internal/models"
)

// ErrNoSnapshotStore is returned by OpenSnapshotStore when no backend is
// configured.
var ErrNoSnapshotStore = errors.New("no snapshot store configured")

// SnapshotStore defines durable storage for room snapshots.
// PostgresStore, SQLiteStore and PebbleStore implement this interface.
type SnapshotStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Snapshot operations
	InsertSnapshot(ctx context.Context, snap *models.Snapshot) error
	ListSnapshots(ctx context.Context, roomID string, limit int) ([]models.Snapshot, error)
	CountSnapshots(ctx context.Context) (int64, error)
	LatestSnapshotAt(ctx context.Context) (*time.Time, error)
}

// SnapshotConfig selects a snapshot backend. The first non-empty field in
// the order Postgres, SQLite, Pebble wins.
type SnapshotConfig struct {
	DatabaseURL string
	SQLitePath  string
	PebbleDir   string
}

// OpenSnapshotStore opens the configured backend.
func OpenSnapshotStore(ctx context.Context, cfg SnapshotConfig) (SnapshotStore, error) {
	var (
		s   SnapshotStore
		err error
	)
	switch {
	case cfg.DatabaseURL != "":
		s, err = NewPostgresStore(ctx, cfg.DatabaseURL)
	case cfg.SQLitePath != "":
		s, err = NewSQLiteStore(ctx, cfg.SQLitePath)
	case cfg.PebbleDir != "":
		s, err = NewPebbleStore(cfg.PebbleDir)
	default:
		return nil, ErrNoSnapshotStore
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

const (
	defaultSnapshotLimit = 20
	maxSnapshotLimit     = 200
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultSnapshotLimit
	}
	if limit > maxSnapshotLimit {
		return maxSnapshotLimit
	}
	return limit
}
