// File: internal/infrastructure/ratelimit/local_rate_limiter.go
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ruther77/MassaCorp-sub001/internal/domain/service"
)

// pruneThreshold bounds the number of tracked keys before idle ones are dropped.
const pruneThreshold = 10000

type localEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LocalRateLimiter is a per-process token bucket per key. Each instance
// counts on its own, so the effective limit grows with the replica count.
type LocalRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*localEntry
	clock   service.Clock
}

// NewLocalRateLimiter: clock may be nil.
func NewLocalRateLimiter(clock service.Clock) *LocalRateLimiter {
	if clock == nil {
		clock = service.SystemClock{}
	}
	return &LocalRateLimiter{entries: make(map[string]*localEntry), clock: clock}
}

// Allow refills limit tokens per window, with a burst of limit.
func (l *LocalRateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return true, nil
	}
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		if len(l.entries) >= pruneThreshold {
			l.prune(now, window)
		}
		e = &localEntry{limiter: rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit)}
		l.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1), nil
}

// Reset forgets the bucket of key.
func (l *LocalRateLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
	return nil
}

// prune drops buckets idle for longer than window; they would be full again anyway.
func (l *LocalRateLimiter) prune(now time.Time, window time.Duration) {
	for k, e := range l.entries {
		if now.Sub(e.lastSeen) > window {
			delete(l.entries, k)
		}
	}
}

var _ service.RateLimiter = (*LocalRateLimiter)(nil)
