package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestTokenBucket_Refill(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	tb := newTokenBucket(2, 1, clock.Now)

	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())
	assert.Equal(t, time.Second, tb.TimeUntilAvailable(1))

	clock.Advance(500 * time.Millisecond)
	assert.False(t, tb.Allow())

	clock.Advance(500 * time.Millisecond)
	assert.True(t, tb.Allow())

	clock.Advance(time.Hour)
	assert.Equal(t, 2.0, tb.Available())
}

func TestTokenBucketPool_Cleanup(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	pool := NewTokenBucketPool(TokenBucketConfig{Capacity: 1, Rate: 1})
	pool.now = clock.Now

	pool.GetOrCreate("a")
	clock.Advance(time.Minute)
	pool.GetOrCreate("b")
	require.Equal(t, 2, pool.Size())

	assert.Equal(t, 1, pool.Cleanup(30*time.Second))
	assert.Equal(t, 1, pool.Size())
}

func TestMemoryRateLimiter(t *testing.T) {
	rl := NewMemoryRateLimiter(2, time.Minute)
	ctx := context.Background()

	d, err := rl.Allow(ctx, "acme:1.2.3.4")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(2), d.Limit)

	d, _ = rl.Allow(ctx, "acme:1.2.3.4")
	assert.True(t, d.Allowed)

	d, _ = rl.Allow(ctx, "acme:1.2.3.4")
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))

	require.NoError(t, rl.Reset(ctx, "acme:1.2.3.4"))
	d, _ = rl.Allow(ctx, "acme:1.2.3.4")
	assert.True(t, d.Allowed)
}
