package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bvc-digitalhub/digitalhub-api/internal/domain"
	"github.com/bvc-digitalhub/digitalhub-api/internal/observability"
)

// Expired claims vanish with their key, so Claim never has to reset one.
var redisIdempotencyClaimScript = redis.NewScript(`
local fp = redis.call("HGET", KEYS[1], "fingerprint")
if not fp then
  redis.call("HSET", KEYS[1], "fingerprint", ARGV[1], "status", ARGV[3])
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
  return {"new"}
end
if fp ~= ARGV[1] then
  return {"conflict"}
end
if redis.call("HGET", KEYS[1], "status") ~= ARGV[4] then
  return {"in_progress"}
end
local r = redis.call("HMGET", KEYS[1], "response_status", "content_type", "body", "cookies")
return {"replay", r[1] or "0", r[2] or "", r[3] or "", r[4] or ""}
`)

var redisIdempotencyCompleteScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "fingerprint") ~= ARGV[1] or redis.call("HGET", KEYS[1], "status") ~= ARGV[2] then
  return 0
end
redis.call("HSET", KEYS[1], "status", ARGV[3], "response_status", ARGV[4], "content_type", ARGV[5], "body", ARGV[6], "cookies", ARGV[7])
redis.call("PEXPIRE", KEYS[1], ARGV[8])
return 1
`)

var redisIdempotencyReleaseScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "fingerprint") == ARGV[1] and redis.call("HGET", KEYS[1], "status") == ARGV[2] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisIdempotencyStore shares claims between api instances. Each claim is one
// hash under prefix:scope:key.
type RedisIdempotencyStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisIdempotencyStore(client redis.UniversalClient, prefix string) *RedisIdempotencyStore {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "idem"
	}
	return &RedisIdempotencyStore{client: client, prefix: prefix}
}

func (s *RedisIdempotencyStore) key(scope, key string) string {
	return s.prefix + ":" + scope + ":" + key
}

func (s *RedisIdempotencyStore) Claim(ctx context.Context, scope, key, fingerprint string, ttl time.Duration) (IdempotencyClaim, error) {
	vals, err := redisIdempotencyClaimScript.Run(ctx, s.client, []string{s.key(scope, key)},
		fingerprint, ttl.Milliseconds(), domain.IdempotencyStatusPending, domain.IdempotencyStatusCompleted,
	).StringSlice()
	if err != nil || len(vals) == 0 {
		observability.RecordRepositoryOperation(ctx, "idempotency_redis", "claim", "error")
		if err == nil {
			err = errors.New("empty script reply")
		}
		return IdempotencyClaim{}, fmt.Errorf("redis claim idempotency key: %w", err)
	}
	observability.RecordRepositoryOperation(ctx, "idempotency_redis", "claim", "success")

	claim := IdempotencyClaim{State: IdempotencyState(vals[0])}
	if claim.State != IdempotencyStateReplay {
		return claim, nil
	}
	if len(vals) != 5 {
		return IdempotencyClaim{}, fmt.Errorf("redis claim idempotency key: malformed replay of %d fields", len(vals))
	}
	status, err := strconv.Atoi(vals[1])
	if err != nil {
		return IdempotencyClaim{}, fmt.Errorf("redis idempotency response status: %w", err)
	}
	var cookies []string
	if vals[4] != "" {
		cookies = strings.Split(vals[4], "\n")
	}
	claim.Response = &StoredResponse{
		StatusCode:  status,
		ContentType: vals[2],
		Body:        []byte(vals[3]),
		Cookies:     cookies,
	}
	return claim, nil
}

func (s *RedisIdempotencyStore) Complete(ctx context.Context, scope, key, fingerprint string, resp StoredResponse, ttl time.Duration) error {
	err := redisIdempotencyCompleteScript.Run(ctx, s.client, []string{s.key(scope, key)},
		fingerprint,
		domain.IdempotencyStatusPending,
		domain.IdempotencyStatusCompleted,
		resp.StatusCode,
		resp.ContentType,
		resp.Body,
		strings.Join(resp.Cookies, "\n"),
		ttl.Milliseconds(),
	).Err()
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "idempotency_redis", "complete", "error")
		return fmt.Errorf("redis complete idempotency key: %w", err)
	}
	observability.RecordRepositoryOperation(ctx, "idempotency_redis", "complete", "success")
	return nil
}

func (s *RedisIdempotencyStore) Release(ctx context.Context, scope, key, fingerprint string) error {
	err := redisIdempotencyReleaseScript.Run(ctx, s.client, []string{s.key(scope, key)},
		fingerprint, domain.IdempotencyStatusPending,
	).Err()
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "idempotency_redis", "release", "error")
		return fmt.Errorf("redis release idempotency key: %w", err)
	}
	observability.RecordRepositoryOperation(ctx, "idempotency_redis", "release", "success")
	return nil
}
