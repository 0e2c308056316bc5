package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/VampKunal/IdeaRoom/internal/eventlog"
	"github.com/VampKunal/IdeaRoom/internal/models"
)

type memInserter struct {
	mu    sync.Mutex
	snaps []models.Snapshot
	fail  bool
}

func (m *memInserter) InsertSnapshot(ctx context.Context, snap *models.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("store down")
	}
	m.snaps = append(m.snaps, *snap)
	return nil
}

func deliver(t *testing.T, b *Builder, room string, seq int) *bool {
	t.Helper()
	acked := new(bool)
	ev := models.Event{ID: fmt.Sprintf("%s-%d", room, seq), RoomID: room, Type: models.EventObjectCreated, ServerTimestamp: int64(seq)}
	d := eventlog.NewDelivery(ev, func(context.Context) error {
		*acked = true
		return nil
	})
	if err := b.Handle(context.Background(), d); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	return acked
}

func TestBuilderFlushesExactBatches(t *testing.T) {
	store := &memInserter{}
	b := NewBuilder(store, 5, zerolog.Nop())

	for i := 0; i < 12; i++ {
		if acked := deliver(t, b, "r1", i); !*acked {
			t.Fatalf("event %d not acknowledged at buffering", i)
		}
	}

	if len(store.snaps) != 2 {
		t.Fatalf("snapshots = %d, want 2", len(store.snaps))
	}
	for i, snap := range store.snaps {
		if len(snap.Events) != 5 {
			t.Errorf("snapshot %d has %d events", i, len(snap.Events))
		}
		if snap.Events[0].ServerTimestamp != int64(i*5) {
			t.Errorf("snapshot %d starts at %d", i, snap.Events[0].ServerTimestamp)
		}
	}
	if got := b.Buffered()["r1"]; got != 2 {
		t.Errorf("buffered = %d, want 2", got)
	}
}

func TestBuilderKeepsRoomsApart(t *testing.T) {
	store := &memInserter{}
	b := NewBuilder(store, 3, zerolog.Nop())

	for i := 0; i < 3; i++ {
		deliver(t, b, "a", i)
		deliver(t, b, "b", i)
	}
	if len(store.snaps) != 2 {
		t.Fatalf("snapshots = %d, want 2", len(store.snaps))
	}
	for _, snap := range store.snaps {
		for _, ev := range snap.Events {
			if ev.RoomID != snap.RoomID {
				t.Errorf("snapshot for %s holds event from %s", snap.RoomID, ev.RoomID)
			}
		}
	}
}

func TestBuilderRetainsBufferOnFailure(t *testing.T) {
	store := &memInserter{fail: true}
	b := NewBuilder(store, 2, zerolog.Nop())

	deliver(t, b, "r1", 0)
	deliver(t, b, "r1", 1)
	if got := b.Buffered()["r1"]; got != 2 {
		t.Fatalf("buffered after failed flush = %d, want 2", got)
	}

	store.fail = false
	deliver(t, b, "r1", 2)

	if len(store.snaps) != 1 {
		t.Fatalf("snapshots = %d, want 1", len(store.snaps))
	}
	if n := len(store.snaps[0].Events); n != 2 {
		t.Errorf("retry flushed %d events, want exactly 2", n)
	}
	if got := b.Buffered()["r1"]; got != 1 {
		t.Errorf("buffered = %d, want 1", got)
	}
}

func TestBuilderDefaultBatchSize(t *testing.T) {
	b := NewBuilder(&memInserter{}, 0, zerolog.Nop())
	if b.batchSize != DefaultBatchSize {
		t.Errorf("batchSize = %d", b.batchSize)
	}
}
