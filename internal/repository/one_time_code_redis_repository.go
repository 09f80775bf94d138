package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bvc-digitalhub/digitalhub-api/internal/domain"
	"github.com/bvc-digitalhub/digitalhub-api/internal/observability"
)

const (
	redisCodeField      = "code"
	redisCreatedAtField = "created_at_ms"
)

type RedisOneTimeCodeRepository struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisOneTimeCodeRepository(client redis.UniversalClient, prefix string, ttl time.Duration) OneTimeCodeRepository {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "otp"
	}
	return &RedisOneTimeCodeRepository{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisOneTimeCodeRepository) key(email string) string {
	return r.prefix + ":" + email
}

func (r *RedisOneTimeCodeRepository) Upsert(ctx context.Context, email, code string, createdAt time.Time) error {
	key := r.key(email)
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, redisCodeField, code, redisCreatedAtField, createdAt.UTC().UnixMilli())
	if r.ttl > 0 {
		pipe.PExpire(ctx, key, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		observability.RecordRepositoryOperation(ctx, "one_time_code_redis", "upsert", "error")
		return fmt.Errorf("redis upsert one-time code: %w", err)
	}
	observability.RecordRepositoryOperation(ctx, "one_time_code_redis", "upsert", "success")
	return nil
}

func (r *RedisOneTimeCodeRepository) Find(ctx context.Context, email string) (*domain.OneTimeCode, error) {
	vals, err := r.client.HGetAll(ctx, r.key(email)).Result()
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "one_time_code_redis", "find", "error")
		return nil, fmt.Errorf("redis find one-time code: %w", err)
	}
	code, ok := vals[redisCodeField]
	if !ok || code == "" {
		observability.RecordRepositoryOperation(ctx, "one_time_code_redis", "find", "not_found")
		return nil, ErrCodeNotFound
	}
	ms, err := strconv.ParseInt(vals[redisCreatedAtField], 10, 64)
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "one_time_code_redis", "find", "error")
		return nil, fmt.Errorf("redis one-time code timestamp: %w", err)
	}
	observability.RecordRepositoryOperation(ctx, "one_time_code_redis", "find", "success")
	return &domain.OneTimeCode{Email: email, Code: code, CreatedAt: time.UnixMilli(ms).UTC()}, nil
}

func (r *RedisOneTimeCodeRepository) Delete(ctx context.Context, email string) error {
	if err := r.client.Del(ctx, r.key(email)).Err(); err != nil {
		observability.RecordRepositoryOperation(ctx, "one_time_code_redis", "delete", "error")
		return fmt.Errorf("redis delete one-time code: %w", err)
	}
	observability.RecordRepositoryOperation(ctx, "one_time_code_redis", "delete", "success")
	return nil
}
