package ratelimit

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"
)

type localState struct {
	tokens float64
	ts     time.Time
}

// LocalBucket is the in-process token bucket used without redis.
type LocalBucket struct {
	mu      sync.Mutex
	rate    float64
	burst   int
	now     func() time.Time
	buckets map[string]*localState
}

func NewLocalBucket(rate float64, burst int, now func() time.Time) *LocalBucket {
	if now == nil {
		now = time.Now
	}
	return &LocalBucket{
		rate:    rate,
		burst:   burst,
		now:     now,
		buckets: make(map[string]*localState),
	}
}

func (b *LocalBucket) Allow(_ context.Context, key string) (Result, error) {
	if key == "" {
		return Result{}, errors.New("rate limiter key is empty")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.evict(now)

	state, ok := b.buckets[key]
	if !ok {
		state = &localState{tokens: float64(b.burst), ts: now}
		b.buckets[key] = state
	} else {
		elapsed := now.Sub(state.ts).Seconds()
		if elapsed > 0 {
			state.tokens = math.Min(float64(b.burst), state.tokens+elapsed*b.rate)
		}
		state.ts = now
	}

	result := Result{Limit: b.burst}
	if state.tokens >= 1 {
		state.tokens--
		result.Allowed = true
	} else {
		result.RetryAfter = retryAfter(state.tokens, b.rate)
	}
	result.Remaining = int(state.tokens)
	return result, nil
}

// evict drops buckets that have been idle long enough to be full again.
func (b *LocalBucket) evict(now time.Time) {
	ttl := bucketTTL(b.rate, b.burst)
	for key, state := range b.buckets {
		if now.Sub(state.ts) > ttl {
			delete(b.buckets, key)
		}
	}
}
