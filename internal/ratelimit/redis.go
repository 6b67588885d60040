package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter evaluates the same hybrid token-bucket-plus-sliding-window
// policy as LocalLimiter, but atomically inside Redis via a Lua script so
// every process behind a load balancer shares one decay curve per key.
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisLimiter(client redis.UniversalClient, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "verifysvc:ratelimit"
	}
	return &RedisLimiter{client: client, prefix: prefix}
}

// hybridScript mirrors LocalLimiter.Allow: state is a hash of
// {tokens, last_refill_ms, hits (a sorted set member list stored as a
// separate key)}. To keep the script self-contained we store hits in a
// Redis sorted set scored by timestamp, and token-bucket state in a hash,
// both under the same logical key.
var hybridScript = redis.NewScript(`
local hashKey = KEYS[1]
local setKey = KEYS[2]
local now_ms = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local sustained_limit = tonumber(ARGV[3])
local burst_capacity = tonumber(ARGV[4])
local refill_per_sec = tonumber(ARGV[5])

redis.call("ZREMRANGEBYSCORE", setKey, "-inf", now_ms - window_ms)

local tokens = burst_capacity
local last_refill = now_ms
local state = redis.call("HMGET", hashKey, "tokens", "last_refill")
if state[1] then
  tokens = tonumber(state[1])
  last_refill = tonumber(state[2])
  local elapsed_sec = (now_ms - last_refill) / 1000.0
  if elapsed_sec > 0 then
    tokens = math.min(burst_capacity, tokens + elapsed_sec * refill_per_sec)
  end
end

local hit_count = redis.call("ZCARD", setKey)

local bucket_retry_ms = 0
if tokens < 1 then
  local need = 1 - tokens
  bucket_retry_ms = math.ceil((need / refill_per_sec) * 1000)
end

local sustained_retry_ms = 0
if hit_count >= sustained_limit then
  local oldest = redis.call("ZRANGE", setKey, 0, 0, "WITHSCORES")
  if oldest[2] then
    sustained_retry_ms = tonumber(oldest[2]) + window_ms - now_ms
    if sustained_retry_ms < 0 then sustained_retry_ms = 0 end
  end
end

local allowed = (bucket_retry_ms <= 0) and (sustained_retry_ms <= 0)
if allowed then
  tokens = tokens - 1
  redis.call("ZADD", setKey, now_ms, now_ms .. ":" .. math.random())
  redis.call("PEXPIRE", setKey, window_ms * 2)
end

redis.call("HSET", hashKey, "tokens", tokens, "last_refill", now_ms)
redis.call("PEXPIRE", hashKey, window_ms * 2)

local retry_ms = bucket_retry_ms
if sustained_retry_ms > retry_ms then retry_ms = sustained_retry_ms end

if allowed then
  return {1, 0}
end
return {0, retry_ms}
`)

func (l *RedisLimiter) Allow(ctx context.Context, key string, policy Policy) (Decision, error) {
	hashKey := fmt.Sprintf("%s:%s:bucket", l.prefix, key)
	setKey := fmt.Sprintf("%s:%s:hits", l.prefix, key)
	now := time.Now()

	res, err := hybridScript.Run(ctx, l.client, []string{hashKey, setKey},
		now.UnixMilli(),
		policy.SustainedWindow.Milliseconds(),
		policy.SustainedLimit,
		policy.BurstCapacity,
		policy.BurstRefillPerSec,
	).Result()
	if err != nil {
		return Decision{}, err
	}
	values, ok := res.([]interface{})
	if !ok || len(values) != 2 {
		return Decision{}, fmt.Errorf("ratelimit: unexpected script result %#v", res)
	}
	allowedInt, _ := toInt64(values[0])
	retryMillis, _ := toInt64(values[1])
	if allowedInt == 1 {
		return Decision{Allowed: true}, nil
	}
	return Decision{Allowed: false, RetryAfter: time.Duration(retryMillis) * time.Millisecond}, nil
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	default:
		return 0, false
	}
}
