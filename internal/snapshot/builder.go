// Package snapshot batches room events from the durable log into snapshots.
package snapshot

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/VampKunal/IdeaRoom/internal/eventlog"
	"github.com/VampKunal/IdeaRoom/internal/metrics"
	"github.com/VampKunal/IdeaRoom/internal/models"
)

// DefaultBatchSize is the number of events per snapshot.
const DefaultBatchSize = 5

// Inserter persists one snapshot.
type Inserter interface {
	InsertSnapshot(ctx context.Context, snap *models.Snapshot) error
}

// Builder buffers events per room and writes a snapshot each time a room
// has a full batch. Events are acknowledged as soon as they are buffered, so
// a crash loses at most the partial batches held in memory.
type Builder struct {
	store     Inserter
	batchSize int
	logger    zerolog.Logger
	now       func() time.Time

	mu      sync.Mutex
	buffers map[string][]models.Event
}

// NewBuilder creates a builder writing batches of batchSize events.
func NewBuilder(store Inserter, batchSize int, logger zerolog.Logger) *Builder {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Builder{
		store:     store,
		batchSize: batchSize,
		logger:    logger.With().Str("component", "snapshot-builder").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
		buffers:   make(map[string][]models.Event),
	}
}

// Run consumes c until ctx is cancelled.
func (b *Builder) Run(ctx context.Context, c eventlog.Consumer) error {
	return c.Consume(ctx, b.Handle)
}

// Handle buffers one delivery, acknowledges it and flushes the room if its
// batch is complete. A failed flush keeps the buffer for the next event.
func (b *Builder) Handle(ctx context.Context, d *eventlog.Delivery) error {
	ev := d.Event
	metrics.EventsConsumed.Inc()

	b.mu.Lock()
	b.buffers[ev.RoomID] = append(b.buffers[ev.RoomID], ev)
	b.mu.Unlock()
	metrics.BufferedEvents.Inc()

	if err := d.Ack(ctx); err != nil {
		b.logger.Warn().Err(err).Str("event_id", ev.ID).Msg("ack failed, event may be delivered again")
	}

	b.flush(ctx, ev.RoomID)
	return nil
}

func (b *Builder) flush(ctx context.Context, roomID string) {
	for {
		b.mu.Lock()
		buf := b.buffers[roomID]
		if len(buf) < b.batchSize {
			b.mu.Unlock()
			return
		}
		batch := make([]models.Event, b.batchSize)
		copy(batch, buf[:b.batchSize])
		b.mu.Unlock()

		snap := &models.Snapshot{
			ID:        uuid.New().String(),
			RoomID:    roomID,
			Events:    batch,
			CreatedAt: b.now(),
		}
		if err := b.store.InsertSnapshot(ctx, snap); err != nil {
			metrics.SnapshotsWritten.WithLabelValues("error").Inc()
			b.logger.Error().Err(err).Str("room_id", roomID).Int("buffered", len(buf)).Msg("snapshot write failed, keeping buffer")
			return
		}
		metrics.SnapshotsWritten.WithLabelValues("ok").Inc()
		metrics.BufferedEvents.Sub(float64(b.batchSize))

		b.mu.Lock()
		rest := b.buffers[roomID][b.batchSize:]
		if len(rest) == 0 {
			delete(b.buffers, roomID)
		} else {
			b.buffers[roomID] = append([]models.Event(nil), rest...)
		}
		b.mu.Unlock()

		b.logger.Info().Str("room_id", roomID).Str("snapshot_id", snap.ID).Int("events", len(batch)).Msg("snapshot saved")
	}
}

// Buffered returns the number of events waiting per room.
func (b *Builder) Buffered() map[string]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]int, len(b.buffers))
	for room, buf := range b.buffers {
		out[room] = len(buf)
	}
	return out
}
