package middleware

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const blockPrefix = "blocked:ip:"

// IPBlocker keeps temporary IP blocks in Redis so every instance honours
// them.
type IPBlocker struct {
	client *redis.Client
}

func NewIPBlocker(client *redis.Client) *IPBlocker {
	return &IPBlocker{client: client}
}

// IsBlocked reports whether ip is blocked. Lookup failures count as not
// blocked.
func (b *IPBlocker) IsBlocked(ctx context.Context, ip string) bool {
	n, err := b.client.Exists(ctx, blockPrefix+ip).Result()
	return err == nil && n > 0
}

// Block blocks ip for d, recording reason as the key's value.
func (b *IPBlocker) Block(ctx context.Context, ip string, d time.Duration, reason string) error {
	return b.client.Set(ctx, blockPrefix+ip, reason, d).Err()
}

func (b *IPBlocker) Unblock(ctx context.Context, ip string) error {
	return b.client.Del(ctx, blockPrefix+ip).Err()
}
