package service

import (
	"context"
	"time"
)

// RateLimitDecision is the outcome of one rate limit check.
type RateLimitDecision struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	RetryAfter time.Duration
}

// RateLimiter throttles credential attempts. key identifies the caller, usually realm plus client address.
// RateLimiter 限制凭据尝试频率。key 标识调用方，通常为领域加客户端地址。
type RateLimiter interface {
	Allow(ctx context.Context, key string) (*RateLimitDecision, error)
	Reset(ctx context.Context, key string) error
}
