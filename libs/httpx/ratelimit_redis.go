package httpx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindow increments the caller's counter, starting the window on first hit, and returns {count, pttl}.
var fixedWindow = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {n, redis.call("PTTL", KEYS[1])}
`)

// RedisLimiter shares fixed windows across every replica through Redis.
type RedisLimiter struct {
	rdb    redis.Scripter
	limit  int
	window time.Duration
	prefix string
}

// NewRedisLimiter stores counters under prefix+client. An empty prefix becomes "rl:".
func NewRedisLimiter(rdb redis.Scripter, limit int, every time.Duration, prefix string) *RedisLimiter {
	limit, every = limitDefaults(limit, every)
	if prefix == "" {
		prefix = "rl:"
	}
	return &RedisLimiter{rdb: rdb, limit: limit, window: every, prefix: prefix}
}

func (r *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	vals, err := fixedWindow.Run(ctx, r.rdb, []string{r.prefix + key}, r.window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(vals) != 2 {
		return Decision{}, fmt.Errorf("rate limit script: want 2 values, got %d", len(vals))
	}
	resetIn := time.Duration(vals[1]) * time.Millisecond
	if resetIn < 0 {
		resetIn = r.window
	}
	return decide(int(vals[0]), r.limit, resetIn), nil
}
