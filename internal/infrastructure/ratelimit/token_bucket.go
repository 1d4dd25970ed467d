// Package ratelimit provides rate limiting implementations.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/turtacn/realmkeys/internal/domain/service"
)

// TokenBucket implements the token bucket algorithm for rate limiting.
// It provides thread-safe rate limiting with automatic token refill.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   float64   // Maximum number of tokens
	tokens     float64   // Current number of tokens
	rate       float64   // Tokens added per second
	lastRefill time.Time // Last time tokens were refilled
	now        func() time.Time
}

// TokenBucketConfig holds configuration for creating a token bucket.
type TokenBucketConfig struct {
	// Capacity is the maximum number of tokens the bucket can hold
	Capacity float64
	// Rate is the number of tokens added per second
	Rate float64
}

// NewTokenBucket creates a new token bucket with the specified capacity and rate.
func NewTokenBucket(capacity, rate float64) *TokenBucket {
	return newTokenBucket(capacity, rate, time.Now)
}

func newTokenBucket(capacity, rate float64, now func() time.Time) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity, // Start with full bucket
		rate:       rate,
		lastRefill: now(),
		now:        now,
	}
}

// Allow attempts to consume one token from the bucket.
func (tb *TokenBucket) Allow() bool {
	return tb.AllowN(1.0)
}

// AllowN attempts to consume n tokens from the bucket.
// Returns true if enough tokens were available, false otherwise.
func (tb *TokenBucket) AllowN(n float64) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	// Refill tokens based on elapsed time
	tb.refill()

	if tb.tokens >= n {
		tb.tokens -= n
		return true
	}
	return false
}

// refill adds tokens to the bucket based on elapsed time since last refill.
// Must be called with lock held.
func (tb *TokenBucket) refill() {
	now := tb.now()
	elapsed := now.Sub(tb.lastRefill).Seconds()

	tb.tokens += elapsed * tb.rate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now
}

// Available returns the current number of tokens available.
func (tb *TokenBucket) Available() float64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	return tb.tokens
}

// TimeUntilAvailable returns the duration until n tokens will be available.
func (tb *TokenBucket) TimeUntilAvailable(n float64) time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	if tb.tokens >= n {
		return 0
	}
	seconds := (n - tb.tokens) / tb.rate
	return time.Duration(seconds * float64(time.Second))
}

// TokenBucketPool manages multiple token buckets with automatic cleanup.
type TokenBucketPool struct {
	mu      sync.Mutex
	buckets map[string]*tokenBucketEntry
	config  TokenBucketConfig
	now     func() time.Time
}

// tokenBucketEntry wraps a token bucket with metadata.
type tokenBucketEntry struct {
	bucket   *TokenBucket
	lastUsed time.Time
}

// NewTokenBucketPool creates a new token bucket pool.
func NewTokenBucketPool(config TokenBucketConfig) *TokenBucketPool {
	return &TokenBucketPool{
		buckets: make(map[string]*tokenBucketEntry),
		config:  config,
		now:     time.Now,
	}
}

// GetOrCreate gets an existing bucket or creates a new one.
func (p *TokenBucketPool) GetOrCreate(key string) *TokenBucket {
	p.mu.Lock()
	defer p.mu.Unlock()

	if entry, exists := p.buckets[key]; exists {
		entry.lastUsed = p.now()
		return entry.bucket
	}

	bucket := newTokenBucket(p.config.Capacity, p.config.Rate, p.now)
	p.buckets[key] = &tokenBucketEntry{bucket: bucket, lastUsed: p.now()}
	return bucket
}

// Remove removes a bucket from the pool.
func (p *TokenBucketPool) Remove(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.buckets, key)
}

// Cleanup removes buckets that haven't been used for the specified duration.
func (p *TokenBucketPool) Cleanup(maxIdle time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	removed := 0
	for key, entry := range p.buckets {
		if now.Sub(entry.lastUsed) > maxIdle {
			delete(p.buckets, key)
			removed++
		}
	}
	return removed
}

// Size returns the number of buckets in the pool.
func (p *TokenBucketPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buckets)
}

// MemoryRateLimiter is a single-process service.RateLimiter backed by a TokenBucketPool.
// MemoryRateLimiter 是基于 TokenBucketPool 的单进程限流器。
type MemoryRateLimiter struct {
	pool  *TokenBucketPool
	limit int64
}

var _ service.RateLimiter = (*MemoryRateLimiter)(nil)

// NewMemoryRateLimiter allows limit attempts per window for every key.
func NewMemoryRateLimiter(limit int64, window time.Duration) *MemoryRateLimiter {
	return &MemoryRateLimiter{
		pool: NewTokenBucketPool(TokenBucketConfig{
			Capacity: float64(limit),
			Rate:     float64(limit) / window.Seconds(),
		}),
		limit: limit,
	}
}

// Allow consumes one attempt for key.
func (m *MemoryRateLimiter) Allow(ctx context.Context, key string) (*service.RateLimitDecision, error) {
	return allowLocal(m.pool, m.limit, key), nil
}

// Reset forgets the attempts recorded for key.
func (m *MemoryRateLimiter) Reset(ctx context.Context, key string) error {
	m.pool.Remove(key)
	return nil
}

// RunCleanup drops idle buckets every interval until ctx is done.
func (m *MemoryRateLimiter) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.pool.Cleanup(interval)
		}
	}
}

func allowLocal(pool *TokenBucketPool, limit int64, key string) *service.RateLimitDecision {
	bucket := pool.GetOrCreate(key)
	allowed := bucket.Allow()
	decision := &service.RateLimitDecision{
		Allowed:   allowed,
		Limit:     limit,
		Remaining: int64(math.Floor(bucket.Available())),
	}
	if !allowed {
		decision.RetryAfter = bucket.TimeUntilAvailable(1)
	}
	return decision
}
