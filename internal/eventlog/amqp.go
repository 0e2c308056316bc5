package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/VampKunal/IdeaRoom/internal/models"
)

var errClosed = errors.New("event log closed")

// AMQP is an event log on a durable broker queue. Messages are persistent
// and consumed with manual acknowledgement and a prefetch of one. Lost
// connections are re-established with capped exponential backoff.
type AMQP struct {
	url    string
	queue  string
	logger zerolog.Logger

	mu     sync.Mutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed bool
}

// NewAMQP prepares a broker-backed log. No connection is made until the
// first Publish or Consume.
func NewAMQP(cfg Config, logger zerolog.Logger) *AMQP {
	return &AMQP{
		url:    cfg.URL,
		queue:  cfg.queue(),
		logger: componentLogger(logger, "amqp"),
	}
}

// dial opens a connection and a channel with the queue declared.
func (a *AMQP) dial() (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(a.url)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	if _, err := ch.QueueDeclare(a.queue, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}

// publisher returns the shared publishing channel, dialing once if needed.
func (a *AMQP) publisher() (*amqp.Channel, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, errClosed
	}
	if a.ch != nil && !a.ch.IsClosed() {
		return a.ch, nil
	}
	if a.conn != nil {
		a.conn.Close()
	}
	conn, ch, err := a.dial()
	if err != nil {
		a.conn, a.ch = nil, nil
		return nil, err
	}
	a.conn, a.ch = conn, ch
	return ch, nil
}

// Publish sends ev as a persistent message. A failed publish drops the
// channel so the next call reconnects.
func (a *AMQP) Publish(ctx context.Context, ev *models.Event) error {
	ch, err := a.publisher()
	if err != nil {
		return err
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	err = ch.PublishWithContext(ctx, "", a.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Timestamp:    time.UnixMilli(ev.ServerTimestamp),
		Type:         string(ev.Type),
		Body:         body,
	})
	if err != nil {
		a.mu.Lock()
		if a.ch == ch {
			a.ch.Close()
			a.ch = nil
		}
		a.mu.Unlock()
	}
	return err
}

// Consume reads the queue until ctx is cancelled, reconnecting forever.
func (a *AMQP) Consume(ctx context.Context, h Handler) error {
	backoff := DefaultBackoff()
	for ctx.Err() == nil {
		conn, ch, err := a.dial()
		if err != nil {
			wait := backoff.Next()
			a.logger.Warn().Err(err).Dur("retry_in", wait).Msg("broker unavailable")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}
		backoff.Reset()

		err = a.consumeOn(ctx, ch, h)
		conn.Close()
		if err != nil && ctx.Err() == nil {
			a.logger.Warn().Err(err).Msg("consumer connection lost, reconnecting")
		}
	}
	return nil
}

func (a *AMQP) consumeOn(ctx context.Context, ch *amqp.Channel, h Handler) error {
	if err := ch.Qos(1, 0, false); err != nil {
		return err
	}
	deliveries, err := ch.Consume(a.queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}
	a.logger.Info().Str("queue", a.queue).Msg("consuming")

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			a.deliver(ctx, d, h)
		}
	}
}

func (a *AMQP) deliver(ctx context.Context, d amqp.Delivery, h Handler) {
	var ev models.Event
	if err := json.Unmarshal(d.Body, &ev); err != nil {
		a.logger.Error().Err(err).Str("message_id", d.MessageId).Msg("dropping undecodable event")
		d.Nack(false, false)
		return
	}

	ack := func(context.Context) error { return d.Ack(false) }
	if err := h(ctx, NewDelivery(ev, ack)); err != nil {
		a.logger.Error().Err(err).Str("room_id", ev.RoomID).Msg("event handler failed")
		d.Nack(false, true)
	}
}

// Close tears down the publishing connection.
func (a *AMQP) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	if a.conn != nil {
		err := a.conn.Close()
		a.conn, a.ch = nil, nil
		return err
	}
	return nil
}
