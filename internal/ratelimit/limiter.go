// Package ratelimit throttles expensive per-user operations such as document
// uploads. Buckets live in redis when it is configured so every replica
// shares them, and in process otherwise.
package ratelimit

import (
	"context"
	"math"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/procura/internal/config"
)

type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// New returns nil when the configured rate disables limiting.
func New(client *redis.Client, cfg config.RateLimitConfig) Limiter {
	if cfg.PerMinute <= 0 || cfg.Burst <= 0 {
		return nil
	}
	rate := cfg.PerMinute / 60
	if client == nil {
		return NewLocalBucket(rate, cfg.Burst, time.Now)
	}
	return NewTokenBucket(client, rate, cfg.Burst)
}

func retryAfter(tokens, rate float64) time.Duration {
	needed := 1.0 - tokens
	if needed <= 0 || rate <= 0 {
		return 0
	}
	return time.Duration(math.Ceil(needed/rate*1000)) * time.Millisecond
}

func bucketTTL(rate float64, burst int) time.Duration {
	if rate <= 0 || burst <= 0 {
		return time.Second
	}
	seconds := math.Ceil((float64(burst) / rate) * 2)
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}
