package gateway

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/VampKunal/IdeaRoom/internal/canvas"
	"github.com/VampKunal/IdeaRoom/internal/processor"
)

func newRunningHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub(zerolog.Nop())
	go h.Run(ctx)
	t.Cleanup(cancel)
	return h
}

func TestHubScopes(t *testing.T) {
	h := newRunningHub(t)
	a, b, other := newClient("a", nil, nil, nil), newClient("b", nil, nil, nil), newClient("o", nil, nil, nil)
	for _, c := range []*client{a, b, other} {
		h.register(c)
	}
	h.join(a, "r")
	h.join(b, "r")
	h.join(other, "elsewhere")

	h.Committed("r", &processor.Result{Origin: "a", Broadcast: canvas.Broadcast{Scope: canvas.ScopeOthers, Type: "object-updated"}})
	h.Committed("r", &processor.Result{Origin: "a", Broadcast: canvas.Broadcast{Scope: canvas.ScopeRoom, Type: "object-created"}})
	h.Committed("r", &processor.Result{Origin: "a", Broadcast: canvas.Broadcast{Scope: canvas.ScopeNone}})
	h.Stats() // flush

	if len(a.send) != 1 {
		t.Errorf("origin got %d frames, want 1", len(a.send))
	}
	if len(b.send) != 2 {
		t.Errorf("peer got %d frames, want 2", len(b.send))
	}
	if len(other.send) != 0 {
		t.Errorf("other room got %d frames", len(other.send))
	}
}

func TestHubDropsSlowConsumer(t *testing.T) {
	h := newRunningHub(t)
	slow, fast := newClient("slow", nil, nil, nil), newClient("fast", nil, nil, nil)
	h.register(slow)
	h.register(fast)
	h.join(slow, "r")
	h.join(fast, "r")

	for i := 0; i <= sendBuffer; i++ {
		h.Send("r", "", []byte(`{"type":"x"}`))
		if i < sendBuffer {
			<-fast.send
		}
	}

	s := h.Stats()
	select {
	case <-slow.closed:
	default:
		t.Fatal("slow client was not closed")
	}
	if s.Members["r"] != 1 {
		t.Errorf("members = %d, want 1", s.Members["r"])
	}
	if s.Connections != 2 {
		t.Errorf("connections = %d, want 2 until the read loop unregisters", s.Connections)
	}
}

func TestHubStatsAfterStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub(zerolog.Nop())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	c := newClient("c", nil, nil, nil)
	h.register(c)
	cancel()
	<-done

	if s := h.Stats(); s.Connections != 0 {
		t.Errorf("stats after stop = %+v", s)
	}
	select {
	case <-c.closed:
	default:
		t.Error("stop did not close clients")
	}
	if h.register(newClient("late", nil, nil, nil)) {
		t.Error("register succeeded on a stopped hub")
	}
}

func TestCursorColorIsStable(t *testing.T) {
	if cursorColor("abc") != cursorColor("abc") {
		t.Fatal("color not deterministic")
	}
	seen := map[string]bool{}
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		seen[cursorColor(id)] = true
	}
	if len(seen) < 2 {
		t.Error("palette collapsed to one color")
	}
}
