// File: internal/domain/service/rate_limiter.go
package service

import (
	"context"
	"time"
)

// RateLimiter defines the interface for a rate limiting service.
type RateLimiter interface {
	// Allow increments the counter for key and reports whether it is still
	// within limit for the window. An error means the backend failed; callers
	// decide whether to fail open.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)

	// Reset clears the counter for key.
	Reset(ctx context.Context, key string) error
}
