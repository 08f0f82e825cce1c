package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// consumeScript increments the counter and returns {prior, count, pttl}. The
// expiry is only set when the key has none, so the window starts at the first
// attempt and is never extended.
var consumeScript = redis.NewScript(`
local prior = tonumber(redis.call('GET', KEYS[1]) or '0')
local count = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {prior, count, ttl}
`)

// inspectScript returns {count, pttl}; pttl is -2 when the key is absent.
var inspectScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if not current then
  return {0, -2}
end
return {tonumber(current), redis.call('PTTL', KEYS[1])}
`)

// RedisCounter implements Counter with server-side Lua scripts, so every
// increment is atomic across all service instances.
type RedisCounter struct {
	client redis.Scripter
}

func NewRedisCounter(client redis.Scripter) *RedisCounter {
	return &RedisCounter{client: client}
}

func (c *RedisCounter) ConsumeQuota(ctx context.Context, key string, window time.Duration) (Usage, error) {
	vals, err := consumeScript.Run(ctx, c.client, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Usage{}, fmt.Errorf("consume quota %s: %w", key, err)
	}
	if len(vals) != 3 {
		return Usage{}, fmt.Errorf("consume quota %s: unexpected reply length %d", key, len(vals))
	}
	return Usage{
		Prior:  vals[0],
		Count:  vals[1],
		TTL:    time.Duration(vals[2]) * time.Millisecond,
		Exists: true,
	}, nil
}

func (c *RedisCounter) InspectQuota(ctx context.Context, key string) (Usage, error) {
	vals, err := inspectScript.Run(ctx, c.client, []string{key}).Int64Slice()
	if err != nil {
		return Usage{}, fmt.Errorf("inspect quota %s: %w", key, err)
	}
	if len(vals) != 2 {
		return Usage{}, fmt.Errorf("inspect quota %s: unexpected reply length %d", key, len(vals))
	}
	if vals[1] == -2 {
		return Usage{}, nil
	}
	return Usage{
		Prior:  vals[0],
		Count:  vals[0],
		TTL:    time.Duration(vals[1]) * time.Millisecond,
		Exists: true,
	}, nil
}
