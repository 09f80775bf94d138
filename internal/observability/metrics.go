package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bvc-digitalhub/digitalhub-api/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/exemplar"
)

const meterName = "digitalhub-api"

type AppMetrics struct {
	authReqDuration              metric.Float64Histogram
	authLoginCounter             metric.Int64Counter
	enrollmentCounter            metric.Int64Counter
	accessTokenValidationCounter metric.Int64Counter
	projectOperationCounter      metric.Int64Counter
	projectOperationDuration     metric.Float64Histogram
	likeToggleCounter            metric.Int64Counter
	notificationCounter          metric.Int64Counter
	notificationDuration         metric.Float64Histogram
	repositoryOpsCounter         metric.Int64Counter
	rateLimitDecisionCounter     metric.Int64Counter
	abuseGuardCounter            metric.Int64Counter
	abuseGuardCooldown           metric.Float64Histogram
	middlewareValidation         metric.Int64Counter
	idempotencyCounter           metric.Int64Counter
	healthCheckResultCounter     metric.Int64Counter
	healthCheckDuration          metric.Float64Histogram
	databaseStartupCounter       metric.Int64Counter
	databaseStartupDuration      metric.Float64Histogram
	loadgenRequestsCounter       metric.Int64Counter
	toolCommandCounter           metric.Int64Counter
	toolCommandDuration          metric.Float64Histogram
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
)

func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.OTELMetricsEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := serviceResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	latencyBuckets := sdkmetric.Stream{
		Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
			Boundaries: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	}
	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
		sdkmetric.WithExemplarFilter(exemplar.TraceBasedFilter),
		sdkmetric.WithView(
			sdkmetric.NewView(sdkmetric.Instrument{Name: "auth.request.duration"}, latencyBuckets),
			sdkmetric.NewView(sdkmetric.Instrument{Name: "project.operation.duration"}, latencyBuckets),
		),
	)
	otel.SetMeterProvider(mp)

	m, err := newAppMetrics(mp.Meter(meterName))
	if err != nil {
		return nil, err
	}
	metricsMu.Lock()
	appMetrics = m
	metricsMu.Unlock()

	logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, nil
}

func newAppMetrics(meter metric.Meter) (*AppMetrics, error) {
	m := &AppMetrics{}
	var err error
	counter := func(dst *metric.Int64Counter, name string) {
		if err != nil {
			return
		}
		*dst, err = meter.Int64Counter(name)
	}
	histogram := func(dst *metric.Float64Histogram, name, unit, desc string) {
		if err != nil {
			return
		}
		opts := []metric.Float64HistogramOption{metric.WithDescription(desc)}
		if unit != "" {
			opts = append(opts, metric.WithUnit(unit))
		}
		*dst, err = meter.Float64Histogram(name, opts...)
	}

	histogram(&m.authReqDuration, "auth.request.duration", "s", "Duration of auth endpoint requests in seconds")
	counter(&m.authLoginCounter, "auth.login.attempts")
	counter(&m.enrollmentCounter, "auth.enrollment.events")
	counter(&m.accessTokenValidationCounter, "auth.access_token.validation.events")
	counter(&m.projectOperationCounter, "project.operation.events")
	histogram(&m.projectOperationDuration, "project.operation.duration", "s", "Duration of project service operations in seconds")
	counter(&m.likeToggleCounter, "project.like.toggles")
	counter(&m.notificationCounter, "notification.dispatch.events")
	histogram(&m.notificationDuration, "notification.dispatch.duration", "s", "Duration of notification provider calls in seconds")
	counter(&m.repositoryOpsCounter, "repository.operations")
	counter(&m.rateLimitDecisionCounter, "http.rate_limit.decisions")
	counter(&m.abuseGuardCounter, "auth.abuse_guard.events")
	histogram(&m.abuseGuardCooldown, "auth.abuse_guard.cooldown", "s", "Cooldown duration returned by auth abuse guard")
	counter(&m.middlewareValidation, "http.middleware.validation.events")
	counter(&m.idempotencyCounter, "http.idempotency.events")
	counter(&m.healthCheckResultCounter, "health.check.results")
	histogram(&m.healthCheckDuration, "health.check.duration", "s", "Duration of health dependency checks in seconds")
	counter(&m.databaseStartupCounter, "database.startup.events")
	histogram(&m.databaseStartupDuration, "database.startup.duration", "s", "Duration of database startup steps in seconds")
	counter(&m.loadgenRequestsCounter, "loadgen.requests")
	counter(&m.toolCommandCounter, "tool.command.runs")
	histogram(&m.toolCommandDuration, "tool.command.duration", "s", "Duration of operator tool commands in seconds")
	if err != nil {
		return nil, err
	}
	return m, nil
}

func loadAppMetrics() *AppMetrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return appMetrics
}

func RecordAuthRequestDuration(ctx context.Context, endpoint, status string, duration time.Duration) {
	m := loadAppMetrics()
	if m == nil {
		return
	}
	m.authReqDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("status", status),
	))
}

func RecordAuthLogin(ctx context.Context, status string) {
	m := loadAppMetrics()
	if m == nil {
		return
	}
	m.authLoginCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordEnrollmentEvent counts enrollment pipeline steps (begin, verify, complete).
func RecordEnrollmentEvent(ctx context.Context, step, outcome string) {
	m := loadAppMetrics()
	if m == nil {
		return
	}
	m.enrollmentCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("step", step),
		attribute.String("outcome", outcome),
	))
}

func RecordAccessTokenValidation(ctx context.Context, outcome, source string) {
	m := loadAppMetrics()
	if m == nil {
		return
	}
	m.accessTokenValidationCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("source", source),
	))
}

func RecordProjectOperation(ctx context.Context, operation, outcome string, duration time.Duration) {
	m := loadAppMetrics()
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	)
	m.projectOperationCounter.Add(ctx, 1, attrs)
	m.projectOperationDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordLikeToggle counts toggle results: added, removed or rejected.
func RecordLikeToggle(ctx context.Context, result string) {
	m := loadAppMetrics()
	if m == nil {
		return
	}
	m.likeToggleCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func RecordNotificationDispatch(ctx context.Context, provider, outcome string, duration time.Duration) {
	m := loadAppMetrics()
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("outcome", outcome),
	)
	m.notificationCounter.Add(ctx, 1, attrs)
	m.notificationDuration.Record(ctx, duration.Seconds(), attrs)
}

func RecordRepositoryOperation(ctx context.Context, repository, operation, outcome string) {
	m := loadAppMetrics()
	if m == nil {
		return
	}
	m.repositoryOpsCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("repository", repository),
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

func RecordRateLimitDecision(ctx context.Context, scope, outcome, mode string) {
	m := loadAppMetrics()
	if m == nil {
		return
	}
	m.rateLimitDecisionCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("outcome", outcome),
		attribute.String("mode", mode),
	))
}

func RecordAuthAbuseGuardEvent(ctx context.Context, scope, action, outcome string) {
	m := loadAppMetrics()
	if m == nil {
		return
	}
	m.abuseGuardCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("action", action),
		attribute.String("outcome", outcome),
	))
}

func RecordAuthAbuseCooldown(ctx context.Context, scope, action string, cooldown time.Duration) {
	m := loadAppMetrics()
	if m == nil {
		return
	}
	m.abuseGuardCooldown.Record(ctx, cooldown.Seconds(), metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("action", action),
	))
}

func RecordMiddlewareValidationEvent(ctx context.Context, middleware, outcome string) {
	m := loadAppMetrics()
	if m == nil {
		return
	}
	m.middlewareValidation.Add(ctx, 1, metric.WithAttributes(
		attribute.String("middleware", middleware),
		attribute.String("outcome", outcome),
	))
}

// RecordIdempotencyEvent counts keyed request outcomes: new, replay, conflict,
// in_progress, released or store_error.
func RecordIdempotencyEvent(ctx context.Context, scope, outcome string) {
	m := loadAppMetrics()
	if m == nil {
		return
	}
	m.idempotencyCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("outcome", outcome),
	))
}

func RecordHealthCheckResult(ctx context.Context, check, outcome string) {
	m := loadAppMetrics()
	if m == nil {
		return
	}
	m.healthCheckResultCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("check", check),
		attribute.String("outcome", outcome),
	))
}

func RecordHealthCheckDuration(ctx context.Context, check string, duration time.Duration) {
	m := loadAppMetrics()
	if m == nil {
		return
	}
	m.healthCheckDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("check", check),
	))
}

func RecordDatabaseStartupEvent(ctx context.Context, step, outcome string) {
	m := loadAppMetrics()
	if m == nil {
		return
	}
	m.databaseStartupCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("step", step),
		attribute.String("outcome", outcome),
	))
}

func RecordDatabaseStartupDuration(ctx context.Context, step string, duration time.Duration) {
	m := loadAppMetrics()
	if m == nil {
		return
	}
	m.databaseStartupDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("step", step),
	))
}

func RecordLoadgenRequest(ctx context.Context, statusClass, profile string) {
	m := loadAppMetrics()
	if m == nil {
		return
	}
	m.loadgenRequestsCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status_class", statusClass),
		attribute.String("profile", profile),
	))
}

func RecordToolCommandRun(ctx context.Context, tool, command, outcome string) {
	m := loadAppMetrics()
	if m == nil {
		return
	}
	m.toolCommandCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("command", command),
		attribute.String("outcome", outcome),
	))
}

func RecordToolCommandDuration(ctx context.Context, tool, command, outcome string, duration time.Duration) {
	m := loadAppMetrics()
	if m == nil {
		return
	}
	m.toolCommandDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("command", command),
		attribute.String("outcome", outcome),
	))
}
