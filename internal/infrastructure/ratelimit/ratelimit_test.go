package ratelimit

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestLocalRateLimiter_AllowsBurstThenRefills(t *testing.T) {
	clock := &stepClock{now: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
	l := NewLocalRateLimiter(clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ok, err := l.Allow(ctx, "login:ip:1", 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "attempt %d", i+1)
	}
	ok, _ := l.Allow(ctx, "login:ip:1", 5, time.Minute)
	assert.False(t, ok)

	other, _ := l.Allow(ctx, "login:ip:2", 5, time.Minute)
	assert.True(t, other, "keys are independent")

	clock.Advance(12 * time.Second)
	ok, _ = l.Allow(ctx, "login:ip:1", 5, time.Minute)
	assert.True(t, ok, "one token refills per window/limit")

	require.NoError(t, l.Reset(ctx, "login:ip:1"))
	for i := 0; i < 5; i++ {
		ok, _ = l.Allow(ctx, "login:ip:1", 5, time.Minute)
		assert.True(t, ok)
	}
}

func TestLocalRateLimiter_ZeroLimitDisables(t *testing.T) {
	l := NewLocalRateLimiter(nil)
	ok, err := l.Allow(context.Background(), "k", 0, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

// TestRedisRateLimiter runs against a real server named by TEST_AUTH_REDIS_ADDR.
func TestRedisRateLimiter(t *testing.T) {
	addr := os.Getenv("TEST_AUTH_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_AUTH_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()
	require.NoError(t, client.Ping(ctx).Err())

	l := NewRedisRateLimiter(client, "authcore:test:"+uuid.NewString()+":", zap.NewNop())
	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "ip", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := l.Allow(ctx, "ip", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ttl, err := client.PTTL(ctx, l.keyPrefix+"ip").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)

	require.NoError(t, l.Reset(ctx, "ip"))
	ok, err = l.Allow(ctx, "ip", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisRateLimiter_BackendDownIsAnError(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisRateLimiter(client, "authcore:", zap.NewNop())
	_, err := l.Allow(context.Background(), "ip", 3, time.Minute)
	assert.Error(t, err)
}
