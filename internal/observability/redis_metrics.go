package observability

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const unknownRedisStore = "other"

// RedisStores maps a key prefix to the store that owns it, e.g. "otp" -> "otp_codes".
// Commands are attributed by the prefix of their first key.
type RedisStores map[string]string

func (s RedisStores) storeFor(key string) string {
	prefix, _, found := strings.Cut(key, ":")
	if !found {
		return unknownRedisStore
	}
	if name, ok := s[prefix]; ok {
		return name
	}
	return unknownRedisStore
}

// InstrumentRedisClient adds command, keyspace and pool metrics to client.
// Call it once per client.
func InstrumentRedisClient(client redis.UniversalClient, stores RedisStores, logger *slog.Logger) {
	if client == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	hook, err := newRedisMetricsHook(otel.Meter(meterName), stores, client.PoolStats)
	if err != nil {
		logger.Warn("redis metrics disabled", "error", err)
		return
	}
	client.AddHook(hook)
}

type redisMetricsHook struct {
	stores RedisStores

	commands  metric.Int64Counter
	failures  metric.Int64Counter
	latency   metric.Float64Histogram
	lookups   metric.Int64Counter
	hits      atomic.Int64
	lookupAll atomic.Int64
}

func newRedisMetricsHook(meter metric.Meter, stores RedisStores, poolStats func() *redis.PoolStats) (*redisMetricsHook, error) {
	h := &redisMetricsHook{stores: stores}
	var err error
	if h.commands, err = meter.Int64Counter("redis.command.total",
		metric.WithDescription("Redis commands by store, command and status")); err != nil {
		return nil, err
	}
	if h.failures, err = meter.Int64Counter("redis.command.errors",
		metric.WithDescription("Redis command failures by store and error class")); err != nil {
		return nil, err
	}
	if h.latency, err = meter.Float64Histogram("redis.command.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Redis command latency")); err != nil {
		return nil, err
	}
	if h.lookups, err = meter.Int64Counter("redis.keyspace.lookups",
		metric.WithDescription("Redis reads by store and result (hit or miss)")); err != nil {
		return nil, err
	}

	saturation, err := meter.Float64ObservableGauge("redis.pool.saturation",
		metric.WithUnit("1"),
		metric.WithDescription("Share of pooled connections in use"))
	if err != nil {
		return nil, err
	}
	hitRatio, err := meter.Float64ObservableGauge("redis.keyspace.hit_ratio",
		metric.WithUnit("1"),
		metric.WithDescription("Hits over all observed reads since start"))
	if err != nil {
		return nil, err
	}
	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		if poolStats != nil {
			if stats := poolStats(); stats != nil && stats.TotalConns > 0 {
				used := stats.TotalConns - stats.IdleConns
				o.ObserveFloat64(saturation, clampRatio(float64(used)/float64(stats.TotalConns)))
			}
		}
		if all := h.lookupAll.Load(); all > 0 {
			o.ObserveFloat64(hitRatio, clampRatio(float64(h.hits.Load())/float64(all)))
		}
		return nil
	}, saturation, hitRatio)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (h *redisMetricsHook) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *redisMetricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		h.observe(ctx, cmd, err, time.Since(start))
		return err
	}
}

// ProcessPipelineHook records every queued command. Latency is the whole
// round trip, attributed to each command of the pipeline.
func (h *redisMetricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		elapsed := time.Since(start)
		for _, cmd := range cmds {
			switch strings.ToLower(cmd.Name()) {
			case "multi", "exec":
				continue
			}
			h.observe(ctx, cmd, cmd.Err(), elapsed)
		}
		return err
	}
}

func (h *redisMetricsHook) observe(ctx context.Context, cmd redis.Cmder, err error, elapsed time.Duration) {
	command := strings.ToLower(cmd.Name())
	store := h.stores.storeFor(firstKey(cmd))
	status := redisCommandStatus(err)

	attrs := metric.WithAttributes(
		attribute.String("store", store),
		attribute.String("command", command),
		attribute.String("status", status),
	)
	h.commands.Add(ctx, 1, attrs)
	h.latency.Record(ctx, elapsed.Seconds(), attrs)
	if status == "error" {
		h.failures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("store", store),
			attribute.String("error_type", classifyRedisError(err)),
		))
	}

	hits, misses, ok := classifyKeyspaceOutcome(cmd)
	if !ok {
		return
	}
	h.hits.Add(hits)
	h.lookupAll.Add(hits + misses)
	if hits > 0 {
		h.lookups.Add(ctx, hits, metric.WithAttributes(attribute.String("store", store), attribute.String("result", "hit")))
	}
	if misses > 0 {
		h.lookups.Add(ctx, misses, metric.WithAttributes(attribute.String("store", store), attribute.String("result", "miss")))
	}
}

// firstKey returns the first key argument. Scripts carry their keys after the
// script reference and key count.
func firstKey(cmd redis.Cmder) string {
	args := cmd.Args()
	idx := 1
	switch strings.ToLower(cmd.Name()) {
	case "eval", "evalsha", "eval_ro", "evalsha_ro":
		idx = 3
	}
	if len(args) <= idx {
		return ""
	}
	key, _ := args[idx].(string)
	return key
}

func redisCommandStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, redis.Nil):
		return "miss"
	default:
		return "error"
	}
}

func classifyRedisError(err error) string {
	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, context.DeadlineExceeded), strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "connection"), strings.Contains(msg, "refused"):
		return "connection"
	case strings.HasPrefix(msg, "noscript"):
		return "noscript"
	default:
		return "other"
	}
}

// classifyKeyspaceOutcome reports hit/miss counts for read commands. Writes
// and scripts return ok=false.
func classifyKeyspaceOutcome(cmd redis.Cmder) (hits, misses int64, ok bool) {
	switch strings.ToLower(cmd.Name()) {
	case "get", "hget":
		switch err := cmd.Err(); {
		case errors.Is(err, redis.Nil):
			return 0, 1, true
		case err != nil:
			return 0, 0, false
		}
		return 1, 0, true
	case "hgetall":
		m, isMap := cmd.(*redis.MapStringStringCmd)
		if !isMap || m.Err() != nil {
			return 0, 0, false
		}
		if len(m.Val()) == 0 {
			return 0, 1, true
		}
		return 1, 0, true
	case "hmget", "mget":
		s, isSlice := cmd.(*redis.SliceCmd)
		if !isSlice || s.Err() != nil {
			return 0, 0, false
		}
		for _, v := range s.Val() {
			if v == nil {
				misses++
			} else {
				hits++
			}
		}
		return hits, misses, true
	default:
		return 0, 0, false
	}
}

func clampRatio(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
