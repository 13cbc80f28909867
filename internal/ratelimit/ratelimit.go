package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter enforces a minimum gap between starts that share a key.
// The scrape queue uses one key per queue so at most one job starts per window.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	minDelay time.Duration
}

// NewLimiter creates a limiter that spaces consecutive Wait calls for the
// same key by at least minDelay.
func NewLimiter(minDelay time.Duration) *Limiter {
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		minDelay: minDelay,
	}
}

func (r *Limiter) get(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Every(r.minDelay), 1)
		r.limiters[key] = l
	}
	return l
}

// Wait blocks until key may start again. Concurrent callers are queued one
// window apart. Returns an error if ctx is cancelled while waiting; the
// reserved slot is released in that case.
func (r *Limiter) Wait(ctx context.Context, key string) error {
	if err := r.get(key).Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait for %s: %w", key, err)
	}
	return nil
}
