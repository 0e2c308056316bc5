package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/VampKunal/IdeaRoom/internal/metrics"
	"github.com/VampKunal/IdeaRoom/internal/models"
)

// PostgresStore handles PostgreSQL snapshot storage.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool
// and ensures its schema.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	s := &PostgresStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS room_snapshots (
			id UUID PRIMARY KEY,
			room_id TEXT NOT NULL,
			events JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_room_snapshots_room_created
			ON room_snapshots (room_id, created_at DESC);
	`)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InsertSnapshot persists one batch. A missing id or timestamp is filled in.
func (s *PostgresStore) InsertSnapshot(ctx context.Context, snap *models.Snapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}

	events, err := json.Marshal(snap.Events)
	if err != nil {
		return err
	}

	start := time.Now()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO room_snapshots (id, room_id, events, created_at)
		VALUES ($1, $2, $3, $4)
	`, snap.ID, snap.RoomID, events, snap.CreatedAt)
	metrics.SnapshotStoreLatency.Observe(time.Since(start).Seconds())
	return err
}

// ListSnapshots returns the room's most recent snapshots, newest first.
func (s *PostgresStore) ListSnapshots(ctx context.Context, roomID string, limit int) ([]models.Snapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, room_id, events, created_at
		FROM room_snapshots
		WHERE room_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, roomID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snaps := []models.Snapshot{}
	for rows.Next() {
		var snap models.Snapshot
		var events []byte
		if err := rows.Scan(&snap.ID, &snap.RoomID, &events, &snap.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(events, &snap.Events); err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// CountSnapshots returns the total number of snapshots.
func (s *PostgresStore) CountSnapshots(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM room_snapshots`).Scan(&count)
	return count, err
}

// LatestSnapshotAt returns the time of the newest snapshot, or nil.
func (s *PostgresStore) LatestSnapshotAt(ctx context.Context) (*time.Time, error) {
	var t *time.Time
	err := s.pool.QueryRow(ctx, `SELECT MAX(created_at) FROM room_snapshots`).Scan(&t)
	if err != nil {
		return nil, err
	}
	return t, nil
}
