// File: internal/infrastructure/ratelimit/redis_rate_limiter.go
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/ruther77/MassaCorp-sub001/internal/domain/service"
)

// fixedWindowScript increments the counter and starts its window on the first hit.
var fixedWindowScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// RedisRateLimiter is a fixed-window counter shared by every instance.
type RedisRateLimiter struct {
	client    redis.UniversalClient
	keyPrefix string
	logger    *zap.Logger
}

// NewRedisRateLimiter creates a new Redis-backed RateLimiter.
func NewRedisRateLimiter(client redis.UniversalClient, keyPrefix string, logger *zap.Logger) *RedisRateLimiter {
	return &RedisRateLimiter{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    logger.Named("redis_rate_limiter"),
	}
}

// Allow implements service.RateLimiter. INCR and PEXPIRE run atomically in one script.
func (r *RedisRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return true, nil
	}
	count, err := fixedWindowScript.Run(ctx, r.client, []string{r.keyPrefix + key}, window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("redis rate limit check failed: %w", err)
	}
	if count > int64(limit) {
		r.logger.Warn("Rate limit exceeded", zap.String("key", key), zap.Int64("count", count), zap.Int("limit", limit))
		return false, nil
	}
	return true, nil
}

// Reset explicitly deletes a rate limiting key.
func (r *RedisRateLimiter) Reset(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis DEL failed: %w", err)
	}
	return nil
}

var _ service.RateLimiter = (*RedisRateLimiter)(nil)
