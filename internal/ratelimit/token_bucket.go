package ratelimit

import (
	"context"
	"errors"
	"math"
	"time"

	redis "github.com/redis/go-redis/v9"
)

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

-- milli-tokens keep the fractional part through the integer reply
return {allowed, math.floor(tokens * 1000)}
`

var (
	ErrNotConfigured = errors.New("rate limiter not configured")
	ErrInvalidBucket = errors.New("rate limiter rate and burst must be positive")
	errBadReply      = errors.New("invalid rate limit script response")
)

// TokenBucket is a redis-backed bucket refilled continuously at rate tokens per second.
type TokenBucket struct {
	client *redis.Client
	script *redis.Script
}

type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{
		client: client,
		script: redis.NewScript(tokenBucketScript),
	}
}

// Take removes one token from the bucket at key.
func (t *TokenBucket) Take(ctx context.Context, key string, rate float64, burst int) (Result, error) {
	if t == nil || t.client == nil {
		return Result{}, ErrNotConfigured
	}
	if rate <= 0 || burst <= 0 {
		return Result{}, ErrInvalidBucket
	}

	reply, err := t.script.Run(ctx, t.client, []string{key},
		rate, burst, bucketTTL(rate, burst).Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Result{}, err
	}
	if len(reply) < 2 {
		return Result{}, errBadReply
	}

	tokens := float64(reply[1]) / 1000
	allowed := reply[0] == 1
	res := Result{
		Allowed:   allowed,
		Limit:     burst,
		Remaining: int(math.Floor(tokens)),
	}
	if !allowed {
		res.RetryAfter = retryAfter(tokens, rate)
	}
	return res, nil
}

// retryAfter is the time until one whole token is available again.
func retryAfter(tokens, rate float64) time.Duration {
	needed := 1 - tokens
	if needed <= 0 || rate <= 0 {
		return 0
	}
	return time.Duration(math.Ceil(needed / rate * float64(time.Second)))
}

// bucketTTL keeps an idle bucket around for twice the time it takes to refill.
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
