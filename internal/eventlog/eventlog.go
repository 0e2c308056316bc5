// Package eventlog carries committed room events from the mutation path to
// the snapshot builder. Delivery is at-least-once: a consumer that restarts
// may see an event it already handled but not yet acknowledged.
package eventlog

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/VampKunal/IdeaRoom/internal/models"
)

// DefaultQueue is the stream or queue name used when none is configured.
const DefaultQueue = "room-events"

// Publisher appends events to the durable log.
type Publisher interface {
	Publish(ctx context.Context, ev *models.Event) error
	Close() error
}

// Handler processes one delivery. Returning an error leaves the event
// unacknowledged.
type Handler func(ctx context.Context, d *Delivery) error

// Consumer reads events until ctx is cancelled.
type Consumer interface {
	Consume(ctx context.Context, h Handler) error
	Close() error
}

// Delivery is one received event.
type Delivery struct {
	Event models.Event
	ack   func(ctx context.Context) error
}

// Ack marks the event handled so it is not delivered again.
func (d *Delivery) Ack(ctx context.Context) error {
	if d.ack == nil {
		return nil
	}
	return d.ack(ctx)
}

// NewDelivery builds a delivery whose Ack calls ack. Used by in-process
// logs and tests.
func NewDelivery(ev models.Event, ack func(ctx context.Context) error) *Delivery {
	return &Delivery{Event: ev, ack: ack}
}

// NewEvent stamps a ULID and the server time onto a payload.
func NewEvent(roomID string, typ models.EventType, payload any, now time.Time) (*models.Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &models.Event{
		ID:              ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		RoomID:          roomID,
		Type:            typ,
		Payload:         raw,
		ServerTimestamp: now.UnixMilli(),
	}, nil
}

// Config selects and tunes a backend.
type Config struct {
	// URL is an amqp:// or amqps:// broker address. Empty selects Redis
	// Streams on the shared Redis client.
	URL      string
	Queue    string
	Consumer string
}

// IsAMQP reports whether url addresses an AMQP broker.
func IsAMQP(url string) bool {
	return strings.HasPrefix(url, "amqp://") || strings.HasPrefix(url, "amqps://")
}

func (c Config) queue() string {
	if c.Queue == "" {
		return DefaultQueue
	}
	return c.Queue
}

// Nop discards every event. It stands in when no log is configured.
type Nop struct{}

func (Nop) Publish(context.Context, *models.Event) error { return nil }
func (Nop) Close() error                                 { return nil }

func componentLogger(logger zerolog.Logger, backend string) zerolog.Logger {
	return logger.With().Str("component", "eventlog").Str("backend", backend).Logger()
}
