package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ProjectFeedCache holds serialized pages of the public project feed. Any
// project mutation or like toggle invalidates every page at once by moving
// the generation forward. Readers capture the generation before loading a
// page and Set only stores it if no invalidation happened in between.
type ProjectFeedCache interface {
	Generation(ctx context.Context) (int64, error)
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, gen int64, key string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type NoopProjectFeedCache struct{}

func (NoopProjectFeedCache) Generation(context.Context) (int64, error) { return 0, nil }

func (NoopProjectFeedCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

func (NoopProjectFeedCache) Set(context.Context, int64, string, []byte, time.Duration) error {
	return nil
}

func (NoopProjectFeedCache) Invalidate(context.Context) error { return nil }

type feedEntry struct {
	payload   []byte
	expiresAt time.Time
}

type InMemoryProjectFeedCache struct {
	mu      sync.RWMutex
	now     func() time.Time
	gen     int64
	entries map[string]feedEntry
}

func NewInMemoryProjectFeedCache() *InMemoryProjectFeedCache {
	return &InMemoryProjectFeedCache{now: time.Now, entries: make(map[string]feedEntry)}
}

func (c *InMemoryProjectFeedCache) Generation(context.Context) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen, nil
}

func (c *InMemoryProjectFeedCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || !c.now().Before(entry.expiresAt) {
		return nil, false, nil
	}
	return append([]byte(nil), entry.payload...), true, nil
}

// Set drops the page when the cache was invalidated after gen was read.
func (c *InMemoryProjectFeedCache) Set(_ context.Context, gen int64, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return nil
	}
	c.entries[key] = feedEntry{payload: append([]byte(nil), value...), expiresAt: c.now().Add(ttl)}
	return nil
}

func (c *InMemoryProjectFeedCache) Invalidate(context.Context) error {
	c.mu.Lock()
	c.gen++
	clear(c.entries)
	c.mu.Unlock()
	return nil
}

// RedisProjectFeedCache versions its keys with a generation counter so an
// invalidation is a single INCR regardless of how many pages are cached.
type RedisProjectFeedCache struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisProjectFeedCache(client redis.UniversalClient, prefix string) *RedisProjectFeedCache {
	if prefix == "" {
		prefix = "project_feed"
	}
	return &RedisProjectFeedCache{client: client, prefix: prefix}
}

func (c *RedisProjectFeedCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	gen, err := c.Generation(ctx)
	if err != nil {
		return nil, false, err
	}
	raw, err := c.client.Get(ctx, c.dataKey(gen, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

// Set writes under the captured generation. A page loaded before an
// invalidation lands under a retired generation that no reader looks up.
func (c *RedisProjectFeedCache) Set(ctx context.Context, gen int64, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return c.client.Set(ctx, c.dataKey(gen, key), value, ttl).Err()
}

func (c *RedisProjectFeedCache) Invalidate(ctx context.Context) error {
	return c.client.Incr(ctx, c.prefix+":gen").Err()
}

func (c *RedisProjectFeedCache) Generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, c.prefix+":gen").Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *RedisProjectFeedCache) dataKey(gen int64, key string) string {
	return fmt.Sprintf("%s:g%d:%s", c.prefix, gen, key)
}
