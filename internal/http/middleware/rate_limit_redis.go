package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// The window is opened with SET NX so INCR keeps its expiry; the script
// returns {hits, remaining window in ms}.
var redisWindowScript = redis.NewScript(`
redis.call("SET", KEYS[1], 0, "PX", ARGV[1], "NX")
local hits = redis.call("INCR", KEYS[1])
return {hits, redis.call("PTTL", KEYS[1])}
`)

var errNilRedisClient = errors.New("rate limit: redis client is nil")

// RedisFixedWindowLimiter keeps per-key hit counters in Redis so every API
// replica enforces the same budget.
type RedisFixedWindowLimiter struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisFixedWindowLimiter(client redis.UniversalClient, prefix string) *RedisFixedWindowLimiter {
	if prefix == "" {
		prefix = "rl"
	}
	return &RedisFixedWindowLimiter{client: client, prefix: prefix, now: time.Now}
}

func (l *RedisFixedWindowLimiter) bucket(key string) string {
	if key == "" {
		key = "unknown"
	}
	return l.prefix + ":" + key
}

func (l *RedisFixedWindowLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	if l.client == nil {
		return Decision{}, errNilRedisClient
	}
	if window < time.Millisecond {
		window = time.Second
	}

	reply, err := redisWindowScript.Run(ctx, l.client, []string{l.bucket(key)}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit window: %w", err)
	}
	if len(reply) != 2 {
		return Decision{}, fmt.Errorf("rate limit window: unexpected reply %v", reply)
	}

	hits, left := reply[0], time.Duration(reply[1])*time.Millisecond
	if left <= 0 {
		left = window
	}
	d := Decision{
		Allowed:   hits <= int64(limit),
		Remaining: max(limit-int(hits), 0),
		ResetAt:   l.now().Add(left),
	}
	if !d.Allowed {
		d.RetryAfter = left
	}
	return d, nil
}
