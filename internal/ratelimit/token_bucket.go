package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Tokens are stored scaled by 1000 so the integer script reply keeps
// fractional refills.
const tokenBucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local nowData = redis.call("TIME")
local now = (nowData[1] * 1000) + math.floor(nowData[2] / 1000)

local data = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(data[1])
local ts = tonumber(data[2])

if tokens == nil then
  tokens = burst
  ts = now
else
  local delta = now - ts
  if delta < 0 then
    delta = 0
  end
  tokens = math.min(burst, tokens + (delta / 1000) * rate)
  ts = now
end

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call("HMSET", KEYS[1], "tokens", tokens, "ts", ts)
redis.call("PEXPIRE", KEYS[1], ttl)

return {allowed, math.floor(tokens * 1000)}
`

const keyPrefix = "procura:ratelimit:"

type TokenBucket struct {
	client *redis.Client
	script *redis.Script
	rate   float64
	burst  int
}

func NewTokenBucket(client *redis.Client, rate float64, burst int) *TokenBucket {
	return &TokenBucket{
		client: client,
		script: redis.NewScript(tokenBucketScript),
		rate:   rate,
		burst:  burst,
	}
}

func (t *TokenBucket) Allow(ctx context.Context, key string) (Result, error) {
	if key == "" {
		return Result{}, errors.New("rate limiter key is empty")
	}

	ttl := bucketTTL(t.rate, t.burst)
	res, err := t.script.Run(ctx, t.client, []string{keyPrefix + key},
		strconv.FormatFloat(t.rate, 'f', -1, 64),
		t.burst,
		int64(ttl/time.Millisecond),
	).Int64Slice()
	if err != nil {
		return Result{}, err
	}
	if len(res) < 2 {
		return Result{}, errors.New("invalid rate limit script response")
	}

	tokens := float64(res[1]) / 1000
	result := Result{
		Allowed:   res[0] == 1,
		Limit:     t.burst,
		Remaining: int(tokens),
	}
	if !result.Allowed {
		result.RetryAfter = retryAfter(tokens, t.rate)
	}
	return result, nil
}
