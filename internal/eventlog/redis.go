package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/VampKunal/IdeaRoom/internal/models"
)

const (
	// ConsumerGroup is the Redis Streams group the snapshot builder reads as.
	ConsumerGroup = "snapshotter"

	eventField     = "event"
	streamBatch    = 16
	streamBlock    = 2 * time.Second
	pendingStartID = "0"
	newEntriesID   = ">"
)

// RedisStream is an event log on a Redis stream with a consumer group.
// Entries a consumer read but never acknowledged are re-read first when it
// starts again.
type RedisStream struct {
	client   *redis.Client
	stream   string
	consumer string
	logger   zerolog.Logger
}

// NewRedisStream uses client for stream cfg.Queue.
func NewRedisStream(client *redis.Client, cfg Config, logger zerolog.Logger) *RedisStream {
	consumer := cfg.Consumer
	if consumer == "" {
		consumer, _ = os.Hostname()
		if consumer == "" {
			consumer = "snapshotter"
		}
	}
	return &RedisStream{
		client:   client,
		stream:   cfg.queue(),
		consumer: consumer,
		logger:   componentLogger(logger, "redis-stream"),
	}
}

// Publish appends ev to the stream.
func (s *RedisStream) Publish(ctx context.Context, ev *models.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{eventField: string(data)},
	}).Err()
}

// Close is a no-op; the client is shared with the room store.
func (s *RedisStream) Close() error {
	return nil
}

func (s *RedisStream) ensureGroup(ctx context.Context) error {
	err := s.client.XGroupCreateMkStream(ctx, s.stream, ConsumerGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

// Consume delivers this consumer's pending entries, then new ones, until
// ctx is cancelled.
func (s *RedisStream) Consume(ctx context.Context, h Handler) error {
	backoff := DefaultBackoff()
	for {
		err := s.ensureGroup(ctx)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil
		}
		s.logger.Warn().Err(err).Msg("event log not ready")
		if !backoff.Wait(ctx) {
			return nil
		}
	}
	backoff.Reset()

	cursor := pendingStartID
	for ctx.Err() == nil {
		args := &redis.XReadGroupArgs{
			Group:    ConsumerGroup,
			Consumer: s.consumer,
			Streams:  []string{s.stream, cursor},
			Count:    streamBatch,
			Block:    streamBlock,
		}
		if cursor != newEntriesID {
			args.Block = -1
		}

		streams, err := s.client.XReadGroup(ctx, args).Result()
		if errors.Is(err, redis.Nil) {
			cursor = newEntriesID
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Error().Err(err).Msg("read from event stream failed")
			if !backoff.Wait(ctx) {
				return nil
			}
			continue
		}
		backoff.Reset()

		var msgs []redis.XMessage
		if len(streams) > 0 {
			msgs = streams[0].Messages
		}
		if cursor != newEntriesID {
			if len(msgs) == 0 {
				s.logger.Debug().Msg("pending entries drained")
				cursor = newEntriesID
				continue
			}
			cursor = msgs[len(msgs)-1].ID
		}

		for _, msg := range msgs {
			s.deliver(ctx, msg, h)
		}
	}
	return nil
}

func (s *RedisStream) deliver(ctx context.Context, msg redis.XMessage, h Handler) {
	id := msg.ID
	ack := func(ctx context.Context) error {
		return s.client.XAck(ctx, s.stream, ConsumerGroup, id).Err()
	}

	raw, _ := msg.Values[eventField].(string)
	var ev models.Event
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		s.logger.Error().Err(err).Str("entry_id", id).Msg("dropping undecodable event")
		if err := ack(ctx); err != nil {
			s.logger.Error().Err(err).Str("entry_id", id).Msg("ack failed")
		}
		return
	}

	if err := h(ctx, NewDelivery(ev, ack)); err != nil {
		s.logger.Error().Err(err).Str("entry_id", id).Str("room_id", ev.RoomID).Msg("event handler failed")
	}
}
