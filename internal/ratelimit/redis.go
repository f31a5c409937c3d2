package ratelimit

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisLogPrefix   = "ratelimit:log:"
	redisBlockPrefix = "ratelimit:block:"
)

// checkScript performs the whole admission check atomically: block check,
// window prune, capacity check with optional lockout, admit. Scores and
// times are unix milliseconds. Returns {allowed, remaining, reset_ms,
// blocked}.
var checkScript = redis.NewScript(`
local logkey = KEYS[1]
local blockkey = KEYS[2]
local now = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local window = tonumber(ARGV[3])
local block = tonumber(ARGV[4])
local member = ARGV[5]

local blocked_until = tonumber(redis.call("GET", blockkey))
if blocked_until and now < blocked_until then
  return {0, 0, blocked_until, 1}
end

redis.call("ZREMRANGEBYSCORE", logkey, "-inf", now - window)
local count = redis.call("ZCARD", logkey)
if count >= limit then
  if block > 0 then
    local blocked = now + block
    redis.call("SET", blockkey, blocked, "PX", block)
    return {0, 0, blocked, 1}
  end
  local reset = now
  local oldest = redis.call("ZRANGE", logkey, 0, 0, "WITHSCORES")
  if oldest[2] then
    reset = tonumber(oldest[2]) + window
  end
  return {0, 0, reset, 0}
end

redis.call("ZADD", logkey, now, member)
redis.call("PEXPIRE", logkey, window)
return {1, limit - count - 1, now + window, 0}
`)

// Redis is the shared-store Limiter for multi-process deployments. Same
// semantics as Memory; per-key atomicity comes from the Lua script.
type Redis struct {
	client redis.UniversalClient
	now    func() time.Time
	// seq disambiguates members admitted in the same millisecond
	seq atomic.Int64
}

func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{
		client: client,
		now:    time.Now,
	}
}

func (r *Redis) Check(ctx context.Context, key string, limit int, window, block time.Duration) (Decision, error) {
	now := r.now()
	member := fmt.Sprintf("%d-%d", now.UnixNano(), r.seq.Add(1))

	res, err := checkScript.Run(ctx, r.client,
		[]string{redisLogPrefix + key, redisBlockPrefix + key},
		now.UnixMilli(), limit, window.Milliseconds(), block.Milliseconds(), member,
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) < 4 {
		return Decision{}, fmt.Errorf("rate limit script: unexpected reply %v", res)
	}

	return Decision{
		Allowed:   res[0] == 1,
		Remaining: int(res[1]),
		ResetAt:   time.UnixMilli(res[2]),
		Blocked:   res[3] == 1,
	}, nil
}

// Cleanup walks the tracked logs dropping entries older than maxAge and
// deleting emptied keys. Block keys expire on their own TTL.
func (r *Redis) Cleanup(ctx context.Context, maxAge time.Duration) error {
	cutoff := r.now().Add(-maxAge).UnixMilli()

	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, redisLogPrefix+"*", 200).Result()
		if err != nil {
			return fmt.Errorf("rate limit cleanup scan: %w", err)
		}
		for _, k := range keys {
			if err := r.client.ZRemRangeByScore(ctx, k, "-inf", fmt.Sprintf("%d", cutoff)).Err(); err != nil {
				return fmt.Errorf("rate limit cleanup prune %s: %w", k, err)
			}
			n, err := r.client.ZCard(ctx, k).Result()
			if err != nil {
				return fmt.Errorf("rate limit cleanup card %s: %w", k, err)
			}
			if n == 0 {
				if err := r.client.Del(ctx, k).Err(); err != nil {
					return fmt.Errorf("rate limit cleanup del %s: %w", k, err)
				}
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
