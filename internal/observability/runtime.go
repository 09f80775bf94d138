package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/bvc-digitalhub/digitalhub-api/internal/config"

	"go.opentelemetry.io/otel/attribute"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const serviceNamespace = "bvc-digitalhub"

// Runtime holds the OTel providers for the API and its tools. LoggerProvider
// is nil when log export is off.
type Runtime struct {
	LoggerProvider *sdklog.LoggerProvider
	MeterProvider  *sdkmetric.MeterProvider
	TracerProvider *sdktrace.TracerProvider
}

// serviceResource describes this process for every signal.
func serviceResource(ctx context.Context, cfg *config.Config) (*sdkresource.Resource, error) {
	attrs := []attribute.KeyValue{
		attribute.String("service.name", cfg.OTELServiceName),
		attribute.String("service.namespace", serviceNamespace),
		attribute.String("deployment.environment", cfg.OTELEnvironment),
	}
	if v := buildVersion(); v != "" {
		attrs = append(attrs, attribute.String("service.version", v))
	}
	res, err := sdkresource.New(ctx, sdkresource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("create service resource: %w", err)
	}
	return res, nil
}

func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" || info.Main.Version == "(devel)" {
		return ""
	}
	return info.Main.Version
}

// InitRuntime starts logs, then metrics, then tracing. A failing stage shuts
// down the ones already started.
func InitRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	r := &Runtime{}
	stages := []struct {
		name  string
		start func() error
	}{
		{"logs", func() (err error) { r.LoggerProvider, err = InitLogs(ctx, cfg, logger); return err }},
		{"metrics", func() (err error) { r.MeterProvider, err = InitMetrics(ctx, cfg, logger); return err }},
		{"tracing", func() (err error) { r.TracerProvider, err = InitTracing(ctx, cfg, logger); return err }},
	}
	for _, stage := range stages {
		if err := stage.start(); err != nil {
			if shutdownErr := r.Shutdown(ctx); shutdownErr != nil {
				logger.Warn("otel rollback incomplete", "stage", stage.name, "error", shutdownErr)
			}
			return nil, err
		}
	}
	return r, nil
}

// Shutdown flushes traces first and logs last so late shutdown logs still
// reach the collector.
func (r *Runtime) Shutdown(ctx context.Context) error {
	if r == nil {
		return nil
	}
	var errs []error
	if r.TracerProvider != nil {
		if err := r.TracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider: %w", err))
		}
	}
	if r.MeterProvider != nil {
		if err := r.MeterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider: %w", err))
		}
	}
	if r.LoggerProvider != nil {
		if err := r.LoggerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("logger provider: %w", err))
		}
	}
	return errors.Join(errs...)
}
