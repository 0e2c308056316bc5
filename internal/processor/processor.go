// Package processor serializes mutations per room. Each room with work in
// flight owns one goroutine that applies its jobs in arrival order; different
// rooms proceed in parallel.
package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/VampKunal/IdeaRoom/internal/canvas"
	"github.com/VampKunal/IdeaRoom/internal/eventlog"
	"github.com/VampKunal/IdeaRoom/internal/metrics"
	"github.com/VampKunal/IdeaRoom/internal/models"
	"github.com/VampKunal/IdeaRoom/internal/store"
)

var (
	// ErrStoreUnavailable wraps a room state store outage. The mutation was
	// not applied.
	ErrStoreUnavailable = errors.New("room state unavailable")

	ErrClosed = errors.New("processor closed")
)

// StateStore is the read-modify-write primitive the processor needs.
type StateStore interface {
	Mutate(ctx context.Context, roomID string, fn store.MutateFunc) (*models.Document, error)
}

// Config tunes the processor.
type Config struct {
	HistoryLimit int
	IdleTimeout  time.Duration // room worker exits after this long without jobs
	Timeout      time.Duration // per-job bound on store and log calls
	QueueSize    int

	// OnCommit runs on the room's worker after every applied mutation,
	// before the submitter is answered. Commits of one room are reported in
	// the order they were made.
	OnCommit func(roomID string, res *Result)
}

func (c *Config) defaults() {
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = canvas.DefaultHistoryLimit
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 2 * time.Minute
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
}

// Result is the committed outcome of one job.
type Result struct {
	Changed   bool
	Origin    string
	Broadcast canvas.Broadcast
	Document  *models.Document
	Event     *models.Event
}

type reply struct {
	res *Result
	err error
}

type job struct {
	op    canvas.Op
	fn    func(ctx context.Context) error
	reply chan reply
}

type room struct {
	id      string
	jobs    chan job
	wake    chan struct{} // nudges a draining worker to recheck pending
	pending int           // guarded by Processor.mu
}

// Processor owns the per-room workers.
type Processor struct {
	store  StateStore
	events eventlog.Publisher
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time

	mu     sync.Mutex
	rooms  map[string]*room
	closed bool
	quit   chan struct{}
	wg     sync.WaitGroup
}

// New creates a processor.
func New(st StateStore, events eventlog.Publisher, cfg Config, logger zerolog.Logger) *Processor {
	cfg.defaults()
	if events == nil {
		events = eventlog.Nop{}
	}
	return &Processor{
		store:  st,
		events: events,
		cfg:    cfg,
		logger: logger.With().Str("component", "processor").Logger(),
		now:    time.Now,
		rooms:  make(map[string]*room),
		quit:   make(chan struct{}),
	}
}

// Submit queues op for roomID and waits for its result. Once queued the job
// runs to completion even if ctx is cancelled; cancellation only stops the
// wait.
func (p *Processor) Submit(ctx context.Context, roomID string, op canvas.Op) (*Result, error) {
	return p.enqueue(ctx, roomID, job{op: op})
}

// Do runs fn on roomID's worker, ordered with the room's mutations. Work
// that reads the document and must not interleave with a commit, such as
// sending a joiner its initial state, goes through here.
func (p *Processor) Do(ctx context.Context, roomID string, fn func(ctx context.Context) error) error {
	_, err := p.enqueue(ctx, roomID, job{fn: fn})
	return err
}

func (p *Processor) enqueue(ctx context.Context, roomID string, j job) (*Result, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	r, ok := p.rooms[roomID]
	if !ok {
		r = &room{id: roomID, jobs: make(chan job, p.cfg.QueueSize), wake: make(chan struct{}, 1)}
		p.rooms[roomID] = r
		p.wg.Add(1)
		go p.run(r)
	}
	r.pending++
	p.mu.Unlock()

	j.reply = make(chan reply, 1)
	select {
	case r.jobs <- j:
	default:
		// Queue full: wait for room, but only as long as the caller does.
		select {
		case r.jobs <- j:
		case <-ctx.Done():
			p.mu.Lock()
			r.pending--
			p.mu.Unlock()
			select {
			case r.wake <- struct{}{}:
			default:
			}
			return nil, ctx.Err()
		}
	}

	select {
	case rep := <-j.reply:
		return rep.res, rep.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ActiveRooms returns the number of live room workers.
func (p *Processor) ActiveRooms() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.rooms)
}

// Close stops accepting jobs and waits for queued ones to finish.
func (p *Processor) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.quit)
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Processor) run(r *room) {
	defer p.wg.Done()
	metrics.RoomWorkers.Inc()
	defer metrics.RoomWorkers.Dec()

	idle := time.NewTimer(p.cfg.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case j := <-r.jobs:
			p.handle(r, j)
			idle.Reset(p.cfg.IdleTimeout)
		case <-idle.C:
			if p.retire(r) {
				return
			}
			idle.Reset(p.cfg.IdleTimeout)
		case <-p.quit:
			for !p.retire(r) {
				select {
				case j := <-r.jobs:
					p.handle(r, j)
				case <-r.wake:
				}
			}
			return
		}
	}
}

func (p *Processor) handle(r *room, j job) {
	var (
		res *Result
		err error
	)
	if j.fn != nil {
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Timeout)
		err = j.fn(ctx)
		cancel()
	} else {
		res, err = p.execute(r.id, j.op)
		if err == nil && res.Changed && p.cfg.OnCommit != nil {
			p.cfg.OnCommit(r.id, res)
		}
	}
	j.reply <- reply{res: res, err: err}

	p.mu.Lock()
	r.pending--
	p.mu.Unlock()
}

// retire removes the worker if nothing is queued for it.
func (p *Processor) retire(r *room) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r.pending > 0 {
		return false
	}
	delete(p.rooms, r.id)
	return true
}

func (p *Processor) execute(roomID string, op canvas.Op) (*Result, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Timeout)
	defer cancel()

	start := time.Now()
	var (
		out *canvas.Outcome
		now time.Time
	)
	_, err := p.store.Mutate(ctx, roomID, func(doc *models.Document) (*models.Document, error) {
		now = p.now()
		o, err := canvas.Apply(doc, op, canvas.Options{Now: now.UnixMilli(), HistoryLimit: p.cfg.HistoryLimit})
		if err != nil {
			return nil, err
		}
		out = o
		if !o.Changed {
			return nil, nil
		}
		return o.Doc, nil
	})
	metrics.MutationDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		switch {
		case errors.Is(err, canvas.ErrValidation):
			metrics.Mutations.WithLabelValues(string(op.Kind), "invalid").Inc()
			return nil, err
		case errors.Is(err, store.ErrUnavailable):
			metrics.Mutations.WithLabelValues(string(op.Kind), "error").Inc()
			return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		default:
			metrics.Mutations.WithLabelValues(string(op.Kind), "error").Inc()
			return nil, err
		}
	}

	if !out.Changed {
		metrics.Mutations.WithLabelValues(string(op.Kind), "noop").Inc()
		return &Result{Document: out.Doc}, nil
	}
	metrics.Mutations.WithLabelValues(string(op.Kind), "applied").Inc()

	res := &Result{Changed: true, Origin: op.Origin, Broadcast: out.Broadcast, Document: out.Doc}

	ev, err := eventlog.NewEvent(roomID, out.Event, out.Payload, now)
	if err != nil {
		p.logger.Error().Err(err).Str("room_id", roomID).Msg("encode event failed")
		return res, nil
	}
	res.Event = ev
	if err := p.events.Publish(ctx, ev); err != nil {
		metrics.EventsPublished.WithLabelValues("error").Inc()
		p.logger.Error().Err(err).Str("room_id", roomID).Str("event_id", ev.ID).Str("type", string(ev.Type)).Msg("publish event failed")
	} else {
		metrics.EventsPublished.WithLabelValues("ok").Inc()
	}
	return res, nil
}
