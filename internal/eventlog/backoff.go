package eventlog

import (
	"context"
	"time"
)

// Backoff yields capped exponential waits.
type Backoff struct {
	Min time.Duration
	Max time.Duration

	attempt int
}

// DefaultBackoff is used for broker reconnects.
func DefaultBackoff() *Backoff {
	return &Backoff{Min: 500 * time.Millisecond, Max: 30 * time.Second}
}

// Next returns the wait before the next attempt and advances the counter.
func (b *Backoff) Next() time.Duration {
	wait := b.Min << uint(b.attempt)
	if wait <= 0 || wait > b.Max {
		wait = b.Max
	} else {
		b.attempt++
	}
	return wait
}

// Reset starts over from Min after a success.
func (b *Backoff) Reset() {
	b.attempt = 0
}

// Wait sleeps for Next or until ctx is done. It reports false when ctx
// ended first.
func (b *Backoff) Wait(ctx context.Context) bool {
	t := time.NewTimer(b.Next())
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
