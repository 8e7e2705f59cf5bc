package sources

import (
	"context"
	"sync"
	"time"
)

// throttle spaces consecutive requests to one provider by a fixed delay.
// The first request is never delayed.
type throttle struct {
	mu    sync.Mutex
	delay time.Duration
	last  time.Time
}

// do waits for the provider slot, runs fn and records when it finished.
// Requests to the same provider are serialized.
func (t *throttle) do(ctx context.Context, fn func() error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.last.IsZero() && t.delay > 0 {
		if wait := t.delay - time.Since(t.last); wait > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
	}

	defer func() { t.last = time.Now() }()
	return fn()
}
