package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/aristath/contractor/internal/config"
)

func TestInit_RequiresServiceName(t *testing.T) {
	if _, err := Init(context.Background(), Config{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.TelemetryConfig{OTLPEndpoint: "collector:4318", Insecure: true}, "v1.2.0")
	if cfg.ServiceName != "contractor" {
		t.Errorf("expected default service name, got %q", cfg.ServiceName)
	}
	if cfg.ServiceVersion != "v1.2.0" || cfg.OTLPEndpoint != "collector:4318" || !cfg.Insecure {
		t.Errorf("unexpected config: %+v", cfg)
	}

	cfg = ConfigFrom(config.TelemetryConfig{ServiceName: "site-a"}, "")
	if cfg.ServiceName != "site-a" {
		t.Errorf("expected site-a, got %q", cfg.ServiceName)
	}
}

func TestExporterOptions(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		insecure bool
		wantOpts int
		wantErr  bool
	}{
		{name: "default is plain http", endpoint: "", wantOpts: 2},
		{name: "http scheme", endpoint: "http://collector:4318", wantOpts: 2},
		{name: "https scheme", endpoint: "https://collector:4318", wantOpts: 1},
		{name: "bare host port", endpoint: "127.0.0.1:4318", wantOpts: 1},
		{name: "bare host port insecure", endpoint: "collector:4318", insecure: true, wantOpts: 2},
		{name: "scheme without host", endpoint: "http://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := exporterOptions(Config{ServiceName: "x", OTLPEndpoint: tt.endpoint, Insecure: tt.insecure})
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(opts) != tt.wantOpts {
				t.Errorf("expected %d options, got %d", tt.wantOpts, len(opts))
			}
		})
	}
}

func TestNewTracerProviderWithExporter_EmitsSpans(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()

	tp, shutdown, err := newTracerProviderWithExporter(exp, Config{ServiceName: "contractor-test", ServiceVersion: "v0"})
	if err != nil {
		t.Fatalf("new tracer provider: %v", err)
	}

	_, sp := tp.Tracer("test").Start(context.Background(), "phase planning")
	sp.End()

	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("force flush: %v", err)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if spans[0].Name != "phase planning" {
		t.Fatalf("unexpected span name: %q", spans[0].Name)
	}

	found := false
	for _, kv := range spans[0].Resource.Attributes() {
		if kv.Key == attribute.Key("service.name") {
			found = kv.Value.AsString() == "contractor-test"
		}
	}
	if !found {
		t.Fatal("expected resource to include service.name=contractor-test")
	}
}
