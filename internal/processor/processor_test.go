package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/VampKunal/IdeaRoom/internal/canvas"
	"github.com/VampKunal/IdeaRoom/internal/models"
	"github.com/VampKunal/IdeaRoom/internal/store"
)

type memStore struct {
	mu   sync.Mutex
	docs map[string]*models.Document
	down bool
	// inFlight counts concurrent Mutate calls per room.
	inFlight map[string]int
	overlap  bool
}

func newMemStore() *memStore {
	return &memStore{docs: map[string]*models.Document{}, inFlight: map[string]int{}}
}

func (m *memStore) Mutate(ctx context.Context, roomID string, fn store.MutateFunc) (*models.Document, error) {
	m.mu.Lock()
	if m.down {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: dial tcp: refused", store.ErrUnavailable)
	}
	m.inFlight[roomID]++
	if m.inFlight[roomID] > 1 {
		m.overlap = true
	}
	doc := m.docs[roomID]
	if doc == nil {
		doc = models.NewDocument()
	}
	doc = doc.Clone()
	m.mu.Unlock()

	time.Sleep(time.Millisecond)
	next, err := fn(doc)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight[roomID]--
	if err != nil {
		return nil, err
	}
	if next == nil {
		return doc, nil
	}
	m.docs[roomID] = next
	return next, nil
}

type memLog struct {
	mu     sync.Mutex
	events []models.Event
	fail   bool
}

func (l *memLog) Publish(ctx context.Context, ev *models.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail {
		return errors.New("broker down")
	}
	l.events = append(l.events, *ev)
	return nil
}

func (l *memLog) Close() error { return nil }

func node(id string) *models.Object {
	return &models.Object{ID: id, Type: models.TypeNode, Data: models.NodeData{Label: id}}
}

func newTestProcessor(t *testing.T, cfg Config) (*Processor, *memStore, *memLog) {
	t.Helper()
	st, log := newMemStore(), &memLog{}
	p := New(st, log, cfg, zerolog.Nop())
	t.Cleanup(p.Close)
	return p, st, log
}

func TestSubmitAppliesAndPublishes(t *testing.T) {
	p, st, log := newTestProcessor(t, Config{})
	ctx := context.Background()

	res, err := p.Submit(ctx, "r1", canvas.Op{Kind: canvas.OpCreate, Object: node("a")})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if !res.Changed || res.Event == nil {
		t.Fatalf("result = %+v", res)
	}
	if res.Event.Type != models.EventObjectCreated || res.Event.RoomID != "r1" {
		t.Errorf("event = %+v", res.Event)
	}
	if len(log.events) != 1 {
		t.Errorf("published %d events", len(log.events))
	}
	if len(st.docs["r1"].Objects) != 1 {
		t.Errorf("stored doc = %+v", st.docs["r1"])
	}
}

func TestNoOpPublishesNothing(t *testing.T) {
	p, _, log := newTestProcessor(t, Config{})

	res, err := p.Submit(context.Background(), "r1", canvas.Op{Kind: canvas.OpDelete, ID: "ghost"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Changed || res.Event != nil {
		t.Errorf("no-op result = %+v", res)
	}
	if len(log.events) != 0 {
		t.Errorf("no-op published %d events", len(log.events))
	}
}

func TestSameRoomIsSerialized(t *testing.T) {
	p, st, log := newTestProcessor(t, Config{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := p.Submit(ctx, "r1", canvas.Op{Kind: canvas.OpCreate, Object: node(fmt.Sprintf("o%d", i))}); err != nil {
				t.Errorf("Submit() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	if st.overlap {
		t.Error("two mutations for one room ran concurrently")
	}
	if n := len(st.docs["r1"].Objects); n != 20 {
		t.Errorf("objects = %d, want 20", n)
	}
	if len(log.events) != 20 {
		t.Errorf("events = %d, want 20", len(log.events))
	}
}

func TestRoomsRunIndependently(t *testing.T) {
	p, st, _ := newTestProcessor(t, Config{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, room := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func(room string) {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				p.Submit(ctx, room, canvas.Op{Kind: canvas.OpCreate, Object: node(fmt.Sprintf("%s%d", room, i))})
			}
		}(room)
	}
	wg.Wait()

	for _, room := range []string{"a", "b", "c"} {
		if n := len(st.docs[room].Objects); n != 5 {
			t.Errorf("room %s has %d objects", room, n)
		}
	}
}

func TestValidationErrorPassesThrough(t *testing.T) {
	p, _, _ := newTestProcessor(t, Config{})

	_, err := p.Submit(context.Background(), "r1", canvas.Op{Kind: canvas.OpCreate})
	if !errors.Is(err, canvas.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestStoreOutage(t *testing.T) {
	p, st, log := newTestProcessor(t, Config{})
	st.down = true

	_, err := p.Submit(context.Background(), "r1", canvas.Op{Kind: canvas.OpCreate, Object: node("a")})
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("err = %v, want ErrStoreUnavailable", err)
	}
	if len(log.events) != 0 {
		t.Error("event published for a mutation that was not applied")
	}
}

func TestPublishFailureKeepsState(t *testing.T) {
	p, st, log := newTestProcessor(t, Config{})
	log.fail = true

	res, err := p.Submit(context.Background(), "r1", canvas.Op{Kind: canvas.OpCreate, Object: node("a")})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if !res.Changed {
		t.Error("mutation should still be reported as applied")
	}
	if len(st.docs["r1"].Objects) != 1 {
		t.Error("state rolled back after publish failure")
	}
}

func TestIdleWorkerExits(t *testing.T) {
	p, _, _ := newTestProcessor(t, Config{IdleTimeout: 20 * time.Millisecond})

	if _, err := p.Submit(context.Background(), "r1", canvas.Op{Kind: canvas.OpUndo}); err != nil {
		t.Fatal(err)
	}
	if p.ActiveRooms() != 1 {
		t.Fatalf("active rooms = %d, want 1", p.ActiveRooms())
	}

	deadline := time.Now().Add(2 * time.Second)
	for p.ActiveRooms() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("idle worker did not exit")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// A new job spins the room back up.
	if _, err := p.Submit(context.Background(), "r1", canvas.Op{Kind: canvas.OpUndo}); err != nil {
		t.Fatal(err)
	}
}

func TestSubmitAfterClose(t *testing.T) {
	p, _, _ := newTestProcessor(t, Config{})
	p.Close()
	if _, err := p.Submit(context.Background(), "r1", canvas.Op{Kind: canvas.OpUndo}); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}

func TestCancelledWaitStillCommits(t *testing.T) {
	p, st, _ := newTestProcessor(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p.Submit(ctx, "r1", canvas.Op{Kind: canvas.OpCreate, Object: node("a")})

	deadline := time.Now().Add(2 * time.Second)
	for {
		st.mu.Lock()
		doc := st.docs["r1"]
		st.mu.Unlock()
		if doc != nil && len(doc.Objects) == 1 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("queued mutation was dropped when the submitter went away")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestOnCommitReportsInCommitOrder(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	cfg := Config{OnCommit: func(roomID string, res *Result) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, res.Event.ID)
	}}
	p, _, log := newTestProcessor(t, cfg)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p.Submit(ctx, "r1", canvas.Op{Kind: canvas.OpCreate, Object: node(fmt.Sprintf("o%d", i)), Origin: "c1"})
		}(i)
	}
	wg.Wait()
	p.Submit(ctx, "r1", canvas.Op{Kind: canvas.OpDelete, ID: "ghost"})

	if len(order) != 10 {
		t.Fatalf("OnCommit called %d times, want 10 (no-ops excluded)", len(order))
	}
	for i, ev := range log.events {
		if order[i] != ev.ID {
			t.Fatalf("commit %d reported out of order", i)
		}
	}
}

func TestDoRunsBetweenMutations(t *testing.T) {
	p, st, _ := newTestProcessor(t, Config{})
	ctx := context.Background()

	p.Submit(ctx, "r1", canvas.Op{Kind: canvas.OpCreate, Object: node("a")})

	var seen int
	err := p.Do(ctx, "r1", func(ctx context.Context) error {
		st.mu.Lock()
		defer st.mu.Unlock()
		seen = len(st.docs["r1"].Objects)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if seen != 1 {
		t.Errorf("Do observed %d objects, want 1", seen)
	}

	boom := errors.New("boom")
	if err := p.Do(ctx, "r1", func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Errorf("Do() error = %v, want boom", err)
	}
}

func TestFullQueueHonorsContext(t *testing.T) {
	p, _, _ := newTestProcessor(t, Config{QueueSize: 1, IdleTimeout: 20 * time.Millisecond})

	started, release := make(chan struct{}), make(chan struct{})
	go p.Do(context.Background(), "r1", func(context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started

	// Fill the single queue slot behind the blocked job.
	queued := make(chan error, 1)
	go func() {
		_, err := p.Submit(context.Background(), "r1", canvas.Op{Kind: canvas.OpCreate, Object: node("a")})
		queued <- err
	}()
	deadline := time.Now().Add(2 * time.Second)
	for {
		p.mu.Lock()
		n := len(p.rooms["r1"].jobs)
		p.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("second job never queued")
		}
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	if _, err := p.Submit(ctx, "r1", canvas.Op{Kind: canvas.OpCreate, Object: node("b")}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Submit() on a full queue = %v, want DeadlineExceeded", err)
	}
	if waited := time.Since(start); waited > time.Second {
		t.Errorf("Submit() waited %v past its deadline", waited)
	}

	close(release)
	if err := <-queued; err != nil {
		t.Fatalf("queued job: %v", err)
	}

	// The worker only retires once nothing is counted as pending.
	deadline = time.Now().Add(2 * time.Second)
	for p.ActiveRooms() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("worker never retired after an abandoned submit")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCloseWithAbandonedSubmit(t *testing.T) {
	p, _, _ := newTestProcessor(t, Config{QueueSize: 1})

	started, release := make(chan struct{}), make(chan struct{})
	go p.Do(context.Background(), "r1", func(context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started
	go p.Do(context.Background(), "r1", func(context.Context) error { return nil })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	p.Submit(ctx, "r1", canvas.Op{Kind: canvas.OpUndo})

	closed := make(chan struct{})
	go func() {
		p.Close()
		close(closed)
	}()
	close(release)

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close() hung after a submitter gave up")
	}
}
