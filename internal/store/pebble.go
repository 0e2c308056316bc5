package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	pebble "github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"github.com/VampKunal/IdeaRoom/internal/metrics"
	"github.com/VampKunal/IdeaRoom/internal/models"
)

// PebbleStore keeps snapshots in an embedded Pebble database.
//
// Keys:
//
//	snap/{room}/{createdAt ms, zero padded}/{id} -> snapshot JSON
//	time/{createdAt ms, zero padded}/{id}        -> room id
type PebbleStore struct {
	db *pebble.DB
}

// NewPebbleStore opens (or creates) the database in dir.
func NewPebbleStore(dir string) (*PebbleStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

func roomSnapPrefix(roomID string) []byte {
	return []byte("snap/" + roomID + "/")
}

func snapKey(roomID string, ms int64, id string) []byte {
	return []byte(fmt.Sprintf("snap/%s/%020d/%s", roomID, ms, id))
}

func timeKey(ms int64, id string) []byte {
	return []byte(fmt.Sprintf("time/%020d/%s", ms, id))
}

var timePrefix = []byte("time/")

// prefixEnd returns the smallest key greater than every key with prefix.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// Close closes the database.
func (s *PebbleStore) Close() {
	s.db.Close()
}

// Ping reports whether the database is open and readable.
func (s *PebbleStore) Ping(ctx context.Context) error {
	_, closer, err := s.db.Get([]byte("ping"))
	if err == nil {
		closer.Close()
		return nil
	}
	if errors.Is(err, pebble.ErrNotFound) {
		return nil
	}
	return err
}

// InsertSnapshot persists one batch. A missing id or timestamp is filled in.
func (s *PebbleStore) InsertSnapshot(ctx context.Context, snap *models.Snapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	ms := snap.CreatedAt.UnixMilli()
	start := time.Now()
	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(snapKey(snap.RoomID, ms, snap.ID), data, nil); err != nil {
		return err
	}
	if err := b.Set(timeKey(ms, snap.ID), []byte(snap.RoomID), nil); err != nil {
		return err
	}
	err = b.Commit(pebble.Sync)
	metrics.SnapshotStoreLatency.Observe(time.Since(start).Seconds())
	return err
}

// ListSnapshots returns the room's most recent snapshots, newest first.
func (s *PebbleStore) ListSnapshots(ctx context.Context, roomID string, limit int) ([]models.Snapshot, error) {
	prefix := roomSnapPrefix(roomID)
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixEnd(prefix)})
	if err != nil {
		return nil, err
	}
	defer it.Close()

	limit = clampLimit(limit)
	snaps := []models.Snapshot{}
	for ok := it.Last(); ok && len(snaps) < limit; ok = it.Prev() {
		var snap models.Snapshot
		if err := json.Unmarshal(it.Value(), &snap); err != nil {
			return nil, fmt.Errorf("decode snapshot %s: %w", it.Key(), err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, it.Error()
}

// CountSnapshots returns the total number of snapshots.
func (s *PebbleStore) CountSnapshots(ctx context.Context) (int64, error) {
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: timePrefix, UpperBound: prefixEnd(timePrefix)})
	if err != nil {
		return 0, err
	}
	defer it.Close()

	var n int64
	for ok := it.First(); ok; ok = it.Next() {
		n++
	}
	return n, it.Error()
}

// LatestSnapshotAt returns the time of the newest snapshot, or nil.
func (s *PebbleStore) LatestSnapshotAt(ctx context.Context) (*time.Time, error) {
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: timePrefix, UpperBound: prefixEnd(timePrefix)})
	if err != nil {
		return nil, err
	}
	defer it.Close()

	if !it.Last() {
		return nil, it.Error()
	}
	rest := bytes.TrimPrefix(it.Key(), timePrefix)
	end := bytes.IndexByte(rest, '/')
	if end < 0 {
		return nil, fmt.Errorf("malformed time key %q", it.Key())
	}
	ms, err := strconv.ParseInt(string(rest[:end]), 10, 64)
	if err != nil {
		return nil, err
	}
	t := time.UnixMilli(ms).UTC()
	return &t, nil
}
