package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/realmkeys/internal/domain/service"
	"github.com/turtacn/realmkeys/pkg/errors"
	"github.com/turtacn/realmkeys/pkg/logger"
)

// RedisRateLimiter implements distributed rate limiting using Redis.
// Every replica that shares the Redis instance shares the same buckets.
type RedisRateLimiter struct {
	client       redis.UniversalClient
	logger       logger.Logger
	config       *RateLimiterConfig
	localBuckets *TokenBucketPool // Fallback for Redis failures
}

// RateLimiterConfig holds rate limiter configuration.
type RateLimiterConfig struct {
	// Limit is the number of attempts allowed per window
	Limit int64
	// Window is the time window for rate limiting
	Window time.Duration
	// EnableLocalFallback enables local token bucket fallback
	EnableLocalFallback bool
	// KeyPrefix is the Redis key prefix
	KeyPrefix string
}

var _ service.RateLimiter = (*RedisRateLimiter)(nil)

// Lua script for atomic token bucket operations
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local requested = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

local bucket = redis.call('HMGET', key, 'tokens', 'last_refill')
local tokens = tonumber(bucket[1]) or capacity
local last_refill = tonumber(bucket[2]) or now

-- rate is per second, elapsed in ms
local elapsed = math.max(0, now - last_refill)
tokens = math.min(tokens + elapsed * rate / 1000, capacity)

local allowed = 0
if tokens >= requested then
    tokens = tokens - requested
    allowed = 1
end

local retry_ms = 0
if allowed == 0 then
    retry_ms = math.ceil((requested - tokens) / rate * 1000)
end
local full_ms = math.ceil((capacity - tokens) / rate * 1000)

redis.call('HSET', key, 'tokens', tostring(tokens), 'last_refill', now)
redis.call('PEXPIRE', key, full_ms + 60000)

return {allowed, math.floor(tokens), retry_ms}
`)

// NewRedisRateLimiter creates a new Redis-based rate limiter.
func NewRedisRateLimiter(client redis.UniversalClient, config *RateLimiterConfig, log logger.Logger) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, errors.ErrInvalidRequest("redis client is required")
	}
	if config == nil {
		config = DefaultRateLimiterConfig()
	}
	if config.Limit <= 0 || config.Window <= 0 {
		return nil, errors.ErrInvalidRequest("rate limit and window must be positive")
	}

	rl := &RedisRateLimiter{
		client: client,
		logger: log.WithComponent("RedisRateLimiter"),
		config: config,
	}

	// Initialize local fallback if enabled
	if config.EnableLocalFallback {
		rl.localBuckets = NewTokenBucketPool(TokenBucketConfig{
			Capacity: float64(config.Limit),
			Rate:     config.rate(),
		})
	}

	log.Info(context.Background(), "Redis rate limiter initialized",
		logger.Int64("limit", config.Limit),
		logger.Duration("window", config.Window),
		logger.Bool("local_fallback", config.EnableLocalFallback),
	)
	return rl, nil
}

// DefaultRateLimiterConfig returns default rate limiter configuration.
func DefaultRateLimiterConfig() *RateLimiterConfig {
	return &RateLimiterConfig{
		Limit:               20,
		Window:              time.Minute,
		EnableLocalFallback: true,
		KeyPrefix:           "ratelimit",
	}
}

func (c *RateLimiterConfig) rate() float64 {
	return float64(c.Limit) / c.Window.Seconds()
}

// Allow consumes one attempt for key. When Redis fails and the local fallback is enabled,
// the attempt is counted against an in-process bucket instead.
func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) (*service.RateLimitDecision, error) {
	decision, err := rl.eval(ctx, rl.buildKey(key))
	if err == nil {
		return decision, nil
	}
	if rl.localBuckets == nil {
		return nil, errors.ErrServerError("rate limiter unavailable").WithCause(err)
	}
	rl.logger.Warn(ctx, "Redis rate limiter failed, using local buckets", logger.Error(err))
	return allowLocal(rl.localBuckets, rl.config.Limit, key), nil
}

// Reset resets the rate limit for a specific key.
func (rl *RedisRateLimiter) Reset(ctx context.Context, key string) error {
	if err := rl.client.Del(ctx, rl.buildKey(key)).Err(); err != nil && err != redis.Nil {
		return errors.ErrServerError("failed to reset rate limit").WithCause(err)
	}
	if rl.localBuckets != nil {
		rl.localBuckets.Remove(key)
	}
	return nil
}

// eval executes the token bucket script.
func (rl *RedisRateLimiter) eval(ctx context.Context, redisKey string) (*service.RateLimitDecision, error) {
	result, err := tokenBucketScript.Run(ctx, rl.client, []string{redisKey},
		rl.config.Limit, rl.config.rate(), 1, time.Now().UnixMilli()).Int64Slice()
	if err != nil {
		return nil, err
	}
	if len(result) < 3 {
		return nil, fmt.Errorf("invalid Lua script result")
	}

	return &service.RateLimitDecision{
		Allowed:    result[0] == 1,
		Limit:      rl.config.Limit,
		Remaining:  result[1],
		RetryAfter: time.Duration(result[2]) * time.Millisecond,
	}, nil
}

// buildKey builds a Redis key for rate limiting.
func (rl *RedisRateLimiter) buildKey(key string) string {
	return fmt.Sprintf("%s:%s", rl.config.KeyPrefix, key)
}
