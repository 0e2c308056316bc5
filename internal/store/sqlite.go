package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/VampKunal/IdeaRoom/internal/metrics"
	"github.com/VampKunal/IdeaRoom/internal/models"
)

// SQLiteStore handles SQLite snapshot storage.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/idearoom.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/idearoom.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist. created_at holds Unix
// milliseconds.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS room_snapshots (
		id TEXT PRIMARY KEY,
		room_id TEXT NOT NULL,
		events TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_room_snapshots_room_created ON room_snapshots(room_id, created_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InsertSnapshot persists one batch. A missing id or timestamp is filled in.
func (s *SQLiteStore) InsertSnapshot(ctx context.Context, snap *models.Snapshot) error {
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
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO room_snapshots (id, room_id, events, created_at)
		VALUES (?, ?, ?, ?)
	`, snap.ID, snap.RoomID, string(events), snap.CreatedAt.UnixMilli())
	metrics.SnapshotStoreLatency.Observe(time.Since(start).Seconds())
	return err
}

// ListSnapshots returns the room's most recent snapshots, newest first.
func (s *SQLiteStore) ListSnapshots(ctx context.Context, roomID string, limit int) ([]models.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, room_id, events, created_at
		FROM room_snapshots
		WHERE room_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, roomID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snaps := []models.Snapshot{}
	for rows.Next() {
		var snap models.Snapshot
		var events string
		var createdAt int64
		if err := rows.Scan(&snap.ID, &snap.RoomID, &events, &createdAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(events), &snap.Events); err != nil {
			return nil, err
		}
		snap.CreatedAt = time.UnixMilli(createdAt).UTC()
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// CountSnapshots returns the total number of snapshots.
func (s *SQLiteStore) CountSnapshots(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM room_snapshots`).Scan(&count)
	return count, err
}

// LatestSnapshotAt returns the time of the newest snapshot, or nil.
func (s *SQLiteStore) LatestSnapshotAt(ctx context.Context) (*time.Time, error) {
	var ms sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(created_at) FROM room_snapshots`).Scan(&ms); err != nil {
		return nil, err
	}
	if !ms.Valid {
		return nil, nil
	}
	t := time.UnixMilli(ms.Int64).UTC()
	return &t, nil
}
