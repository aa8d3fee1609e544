// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements a Redis-backed token bucket so that every replica of
// the service draws from the same per-identity budget. The bucket state lives
// in one hash per key and is updated atomically by a Lua script. When Redis
// is unreachable the limiter fails open and logs a warning; the in-process
// RateLimiter remains the first line of defense.
package middleware

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// bucketScript refills tokens continuously at rate per second, then takes
// one. Returns {allowed, remaining, retry_after_ms}.
var bucketScript = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local rate = tonumber(ARGV[3])
local ttl_seconds = tonumber(ARGV[4])

local state = redis.call('HMGET', key, 'tokens', 'last_ms')
local tokens = tonumber(state[1])
local last = tonumber(state[2])
if tokens == nil or last == nil then
  tokens = capacity
  last = now_ms
end

if rate > 0 then
  local elapsed = math.max(0, now_ms - last)
  tokens = math.min(capacity, tokens + (elapsed * rate / 1000))
end
last = now_ms

local allowed = 0
local retry_ms = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
elseif rate > 0 then
  retry_ms = math.ceil((1 - tokens) * 1000 / rate)
else
  retry_ms = 1000
end

redis.call('HSET', key, 'tokens', tostring(tokens), 'last_ms', last)
redis.call('EXPIRE', key, ttl_seconds)
return {allowed, math.floor(tokens), retry_ms}
`)

// RedisRateLimiter is a distributed per-key token bucket.
type RedisRateLimiter struct {
	rdb    redis.Scripter
	rps    float64
	burst  int
	keyFn  keyFunc
	prefix string
	ttl    time.Duration
}

// NewRedisRateLimiter builds a limiter sharing state through rdb. Keys are
// namespaced under "ratelimit:".
func NewRedisRateLimiter(rdb redis.Scripter, rps float64, burst int, keyFn keyFunc) *RedisRateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RedisRateLimiter{
		rdb:    rdb,
		rps:    rps,
		burst:  burst,
		keyFn:  keyFn,
		prefix: "ratelimit:",
		ttl:    10 * time.Minute,
	}
}

// Handler returns the Gin middleware. Replays marked by IdempotencyValidator
// are not charged.
func (rl *RedisRateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		key := rl.prefix + rl.keyFn(c)
		args := []interface{}{
			time.Now().UnixMilli(),
			rl.burst,
			rl.rps,
			int64(rl.ttl / time.Second),
		}
		vals, err := bucketScript.Run(c.Request.Context(), rl.rdb, []string{key}, args...).Result()
		if err != nil {
			LoggerFrom(c).Warn().Err(err).Str("key", key).Msg("redis rate limiter unavailable; allowing request")
			c.Next()
			return
		}
		allowed, remaining, retryMs, ok := parseBucketResult(vals)
		if !ok {
			LoggerFrom(c).Warn().Str("key", key).Interface("result", vals).Msg("unexpected rate limiter result")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.burst))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		if allowed {
			c.Next()
			return
		}

		rejectRateLimited(c, int(math.Ceil(float64(retryMs)/1000.0)))
	}
}

// parseBucketResult decodes the script's {allowed, remaining, retry_ms}.
func parseBucketResult(v interface{}) (allowed bool, remaining, retryMs int64, ok bool) {
	arr, isArr := v.([]interface{})
	if !isArr || len(arr) != 3 {
		return false, 0, 0, false
	}
	return asInt64(arr[0]) == 1, asInt64(arr[1]), asInt64(arr[2]), true
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	n, _ := strconv.ParseInt(fmt.Sprint(v), 10, 64)
	return n
}
