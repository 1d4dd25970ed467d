package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/realmkeys/pkg/logger"
)

func newRedisLimiter(t *testing.T, fallback bool) (*RedisRateLimiter, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	rl, err := NewRedisRateLimiter(client, &RateLimiterConfig{
		Limit:               3,
		Window:              time.Minute,
		EnableLocalFallback: fallback,
		KeyPrefix:           "test",
	}, logger.NewNoopLogger())
	require.NoError(t, err)
	return rl, s
}

func TestRedisRateLimiter_Allow(t *testing.T) {
	rl, s := newRedisLimiter(t, false)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := rl.Allow(ctx, "acme:127.0.0.1")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "attempt %d", i+1)
		assert.Equal(t, int64(2-i), d.Remaining)
	}

	d, err := rl.Allow(ctx, "acme:127.0.0.1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
	assert.True(t, s.Exists("test:acme:127.0.0.1"))

	// Other keys have their own bucket.
	d, err = rl.Allow(ctx, "acme:10.0.0.1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	require.NoError(t, rl.Reset(ctx, "acme:127.0.0.1"))
	d, err = rl.Allow(ctx, "acme:127.0.0.1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestRedisRateLimiter_Fallback(t *testing.T) {
	rl, s := newRedisLimiter(t, true)
	s.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		d, err := rl.Allow(ctx, "k")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
	d, err := rl.Allow(ctx, "k")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

func TestRedisRateLimiter_NoFallback(t *testing.T) {
	rl, s := newRedisLimiter(t, false)
	s.Close()

	_, err := rl.Allow(context.Background(), "k")
	assert.Error(t, err)
}

func TestNewRedisRateLimiter_Invalid(t *testing.T) {
	_, err := NewRedisRateLimiter(nil, nil, logger.NewNoopLogger())
	assert.Error(t, err)
}
