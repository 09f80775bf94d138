package observability

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/bvc-digitalhub/digitalhub-api/internal/config"
	"go.opentelemetry.io/otel/attribute"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRuntimeShutdownNilAndEmpty(t *testing.T) {
	var r *Runtime
	if err := r.Shutdown(context.Background()); err != nil {
		t.Fatalf("nil runtime shutdown: %v", err)
	}
	if err := (&Runtime{}).Shutdown(context.Background()); err != nil {
		t.Fatalf("empty runtime shutdown: %v", err)
	}
}

func TestServiceResourceAttributes(t *testing.T) {
	res, err := serviceResource(context.Background(), &config.Config{OTELServiceName: "digitalhub-api", OTELEnvironment: "staging"})
	if err != nil {
		t.Fatalf("service resource: %v", err)
	}
	want := map[attribute.Key]string{
		"service.name":           "digitalhub-api",
		"service.namespace":      serviceNamespace,
		"deployment.environment": "staging",
	}
	for key, value := range want {
		got, ok := res.Set().Value(key)
		if !ok || got.AsString() != value {
			t.Fatalf("%s=%q want %q", key, got.AsString(), value)
		}
	}
}

func TestInitRuntimeAllDisabled(t *testing.T) {
	r, err := InitRuntime(context.Background(), &config.Config{}, discardLogger())
	if err != nil {
		t.Fatalf("init runtime disabled: %v", err)
	}
	if r.MeterProvider == nil || r.TracerProvider == nil {
		t.Fatalf("expected meter and tracer providers, got %+v", r)
	}
	if r.LoggerProvider != nil {
		t.Fatal("expected no logger provider when otel logs are disabled")
	}
	if err := r.Shutdown(context.Background()); err != nil {
		t.Fatalf("runtime shutdown: %v", err)
	}
}

func TestInitRuntimeRollsBackOnExporterError(t *testing.T) {
	cases := map[string]config.Config{
		"metrics": {OTELMetricsEnabled: true},
		"tracing": {OTELTracingEnabled: true, OTELTraceSamplingRatio: 0.5},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			cfg.OTELExporterOTLPEndpoint = "%"
			cfg.OTELExporterOTLPInsecure = true
			cfg.OTELServiceName = "digitalhub-api"
			cfg.OTELEnvironment = "test"
			r, err := InitRuntime(context.Background(), &cfg, discardLogger())
			if err == nil {
				t.Fatalf("expected runtime init error from %s exporter", name)
			}
			if r != nil {
				t.Fatalf("expected nil runtime on failure, got %+v", r)
			}
		})
	}
}
