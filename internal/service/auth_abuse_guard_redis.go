package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bvc-digitalhub/digitalhub-api/internal/observability"
)

// The bump runs server side so concurrent failures across instances never
// lose an increment.
var redisAbuseBumpScript = redis.NewScript(`
local now_ms = tonumber(ARGV[1])
local base_ms = tonumber(ARGV[2])
local multiplier = tonumber(ARGV[3])
local max_ms = tonumber(ARGV[4])
local reset_ms = tonumber(ARGV[5])
local free = tonumber(ARGV[6])

local failures = tonumber(redis.call("HGET", KEYS[1], "failures") or "0")
local last_ms = tonumber(redis.call("HGET", KEYS[1], "last_ms") or "0")
if last_ms == 0 or (now_ms - last_ms) > reset_ms then
  failures = 0
end
failures = failures + 1

local delay = 0
if failures > free then
  delay = math.floor(base_ms * (multiplier ^ (failures - free - 1)))
end
if delay > max_ms then
  delay = max_ms
end

redis.call("HSET", KEYS[1], "failures", failures, "last_ms", now_ms, "until_ms", now_ms + delay)
redis.call("PEXPIRE", KEYS[1], reset_ms + delay)
return delay
`)

// RedisAuthAbuseGuard shares failure counters between api instances.
type RedisAuthAbuseGuard struct {
	client redis.UniversalClient
	prefix string
	policy AuthAbusePolicy
	now    func() time.Time
}

func NewRedisAuthAbuseGuard(client redis.UniversalClient, prefix string, policy AuthAbusePolicy) *RedisAuthAbuseGuard {
	if prefix == "" {
		prefix = "auth_abuse"
	}
	return &RedisAuthAbuseGuard{client: client, prefix: prefix, policy: policy.normalized(), now: time.Now}
}

func (g *RedisAuthAbuseGuard) Check(ctx context.Context, scope AuthAbuseScope, email, ip string) (time.Duration, error) {
	nowMS := g.now().UTC().UnixMilli()
	var wait time.Duration
	for _, key := range abuseKeys(scope, email, ip) {
		vals, err := g.client.HMGet(ctx, g.prefix+":"+key, "last_ms", "until_ms").Result()
		if err != nil {
			observability.RecordAuthAbuseGuardEvent(ctx, string(scope), "check", "error")
			return 0, err
		}
		d, err := g.remaining(vals, nowMS)
		if err != nil {
			return 0, err
		}
		wait = max(wait, d)
	}
	recordGuardCheck(ctx, scope, wait)
	return wait, nil
}

func (g *RedisAuthAbuseGuard) RegisterFailure(ctx context.Context, scope AuthAbuseScope, email, ip string) (time.Duration, error) {
	nowMS := g.now().UTC().UnixMilli()
	var wait time.Duration
	for _, key := range abuseKeys(scope, email, ip) {
		delayMS, err := redisAbuseBumpScript.Run(ctx, g.client, []string{g.prefix + ":" + key},
			nowMS,
			g.policy.BaseDelay.Milliseconds(),
			g.policy.Multiplier,
			g.policy.MaxDelay.Milliseconds(),
			g.policy.ResetWindow.Milliseconds(),
			g.policy.FreeAttempts,
		).Int64()
		if err != nil {
			observability.RecordAuthAbuseGuardEvent(ctx, string(scope), "register_failure", "error")
			return 0, err
		}
		wait = max(wait, time.Duration(max(delayMS, 0))*time.Millisecond)
	}
	observability.RecordAuthAbuseGuardEvent(ctx, string(scope), "register_failure", "ok")
	if wait > 0 {
		observability.RecordAuthAbuseCooldown(ctx, string(scope), "register_failure", wait)
	}
	return wait, nil
}

func (g *RedisAuthAbuseGuard) Reset(ctx context.Context, scope AuthAbuseScope, email, ip string) error {
	keys := abuseKeys(scope, email, ip)
	if err := g.client.Del(ctx, g.prefix+":"+keys[0], g.prefix+":"+keys[1]).Err(); err != nil {
		observability.RecordAuthAbuseGuardEvent(ctx, string(scope), "reset", "error")
		return err
	}
	observability.RecordAuthAbuseGuardEvent(ctx, string(scope), "reset", "ok")
	return nil
}

func (g *RedisAuthAbuseGuard) remaining(vals []any, nowMS int64) (time.Duration, error) {
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return 0, nil
	}
	lastMS, err := parseRedisMillis(vals[0])
	if err != nil {
		return 0, err
	}
	untilMS, err := parseRedisMillis(vals[1])
	if err != nil {
		return 0, err
	}
	if nowMS-lastMS > g.policy.ResetWindow.Milliseconds() || untilMS <= nowMS {
		return 0, nil
	}
	return time.Duration(untilMS-nowMS) * time.Millisecond, nil
}

func parseRedisMillis(v any) (int64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("unexpected redis value type %T", v)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse redis millis %q: %w", s, err)
	}
	return n, nil
}
