package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/VampKunal/IdeaRoom/internal/metrics"
	"github.com/VampKunal/IdeaRoom/internal/models"
)

var (
	// ErrUnavailable wraps any failure to reach Redis.
	ErrUnavailable = errors.New("room state store unavailable")

	// ErrConflict is returned when a read-modify-write lost the optimistic
	// race on every attempt.
	ErrConflict = errors.New("room state modified concurrently")
)

const (
	maxConflictRetries = 3
	activeRoomsKey     = "rooms:active"
)

// RedisStore holds room documents and presence.
type RedisStore struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string, logger zerolog.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	// A failed command surfaces at once instead of being retried.
	opts.MaxRetries = -1
	opts.DialTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	return NewRedisStoreFromClient(client, logger), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, logger zerolog.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		logger: logger.With().Str("component", "room-store").Logger(),
	}
}

// Client exposes the underlying client for the rate limiter and event log.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// stateKey returns the key holding a room's serialized document.
func stateKey(roomID string) string {
	return fmt.Sprintf("room:%s:state", roomID)
}

// usersKey returns the key for a room's presence hash.
func usersKey(roomID string) string {
	return fmt.Sprintf("room:%s:users", roomID)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// Load returns the room's document. A room never written yields an empty
// document; an undecodable one is logged, counted and replaced by an empty
// document.
func (s *RedisStore) Load(ctx context.Context, roomID string) (*models.Document, error) {
	start := time.Now()
	raw, err := s.client.Get(ctx, stateKey(roomID)).Bytes()
	metrics.RedisLatency.Observe(time.Since(start).Seconds())

	if errors.Is(err, redis.Nil) {
		return models.NewDocument(), nil
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return s.decode(roomID, raw), nil
}

// Save overwrites the room's document.
func (s *RedisStore) Save(ctx context.Context, roomID string, doc *models.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	start := time.Now()
	err = s.client.Set(ctx, stateKey(roomID), data, 0).Err()
	metrics.RedisLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// MutateFunc computes the next document from the current one. Returning a
// nil document means nothing changed and nothing is written.
type MutateFunc func(doc *models.Document) (*models.Document, error)

// Mutate runs a read-modify-write of the room's document under WATCH so that
// instances sharing one Redis cannot overwrite each other's changes. fn may
// run more than once and must not have side effects. Errors from fn are
// returned unchanged.
func (s *RedisStore) Mutate(ctx context.Context, roomID string, fn MutateFunc) (*models.Document, error) {
	key := stateKey(roomID)

	for attempt := 0; attempt <= maxConflictRetries; attempt++ {
		var (
			result *models.Document
			fnErr  error
		)

		start := time.Now()
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			doc := models.NewDocument()
			raw, err := tx.Get(ctx, key).Bytes()
			switch {
			case errors.Is(err, redis.Nil):
			case err != nil:
				return err
			default:
				doc = s.decode(roomID, raw)
			}

			next, err := fn(doc)
			if err != nil {
				fnErr = err
				return err
			}
			if next == nil {
				result = doc
				return nil
			}

			data, err := json.Marshal(next)
			if err != nil {
				fnErr = err
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, data, 0)
				return nil
			})
			result = next
			return err
		}, key)
		metrics.RedisLatency.Observe(time.Since(start).Seconds())

		switch {
		case fnErr != nil:
			return nil, fnErr
		case err == nil:
			return result, nil
		case errors.Is(err, redis.TxFailedErr):
			metrics.StateConflicts.Inc()
			s.logger.Debug().Str("room_id", roomID).Int("attempt", attempt+1).Msg("state conflict, retrying")
			continue
		default:
			return nil, unavailable(err)
		}
	}
	return nil, ErrConflict
}

func (s *RedisStore) decode(roomID string, raw []byte) *models.Document {
	var doc models.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		metrics.CorruptDocuments.Inc()
		s.logger.Error().Err(err).Str("room_id", roomID).Msg("corrupt room document, starting empty")
		return models.NewDocument()
	}
	doc.Normalize()
	return &doc
}

// AddMember records a joined connection and marks the room active.
func (s *RedisStore) AddMember(ctx context.Context, sess *models.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, usersKey(sess.RoomID), sess.ConnectionID, data)
		pipe.SAdd(ctx, activeRoomsKey, sess.RoomID)
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// RemoveMember drops a connection from the room's presence. The room leaves
// the active set once its last member is gone.
func (s *RedisStore) RemoveMember(ctx context.Context, roomID, connID string) error {
	var remaining *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, usersKey(roomID), connID)
		remaining = pipe.HLen(ctx, usersKey(roomID))
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	if remaining.Val() == 0 {
		if err := s.client.SRem(ctx, activeRoomsKey, roomID).Err(); err != nil {
			return unavailable(err)
		}
	}
	return nil
}

// ListMembers returns the room's presence ordered by join time.
func (s *RedisStore) ListMembers(ctx context.Context, roomID string) ([]models.Session, error) {
	vals, err := s.client.HVals(ctx, usersKey(roomID)).Result()
	if err != nil {
		return nil, unavailable(err)
	}

	members := make([]models.Session, 0, len(vals))
	for _, v := range vals {
		var sess models.Session
		if err := json.Unmarshal([]byte(v), &sess); err != nil {
			continue
		}
		members = append(members, sess)
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].JoinedAt.Equal(members[j].JoinedAt) {
			return members[i].ConnectionID < members[j].ConnectionID
		}
		return members[i].JoinedAt.Before(members[j].JoinedAt)
	})
	return members, nil
}

// ActiveRooms returns the ids of rooms with at least one member.
func (s *RedisStore) ActiveRooms(ctx context.Context) ([]string, error) {
	rooms, err := s.client.SMembers(ctx, activeRoomsKey).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	sort.Strings(rooms)
	return rooms, nil
}
