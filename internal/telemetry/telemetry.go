// Package telemetry installs the OpenTelemetry tracer provider used for
// phase and task spans.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otlptracehttp "go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/aristath/contractor/internal/config"
)

const defaultEndpoint = "http://127.0.0.1:4318"

// Config controls telemetry initialization.
type Config struct {
	ServiceName    string
	ServiceVersion string
	OTLPEndpoint   string
	Insecure       bool
}

// ConfigFrom converts the file configuration.
func ConfigFrom(c config.TelemetryConfig, version string) Config {
	name := c.ServiceName
	if name == "" {
		name = "contractor"
	}
	return Config{
		ServiceName:    name,
		ServiceVersion: version,
		OTLPEndpoint:   c.OTLPEndpoint,
		Insecure:       c.Insecure,
	}
}

// Init sets the global tracer provider and propagators, exporting over
// OTLP/HTTP. The returned function flushes and stops the provider.
func Init(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if cfg.ServiceName == "" {
		return nil, errors.New("service name required")
	}

	opts, err := exporterOptions(cfg)
	if err != nil {
		return nil, err
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	tp, shutdown, err := newTracerProviderWithExporter(exporter, cfg)
	if err != nil {
		_ = exporter.Shutdown(ctx)
		return nil, err
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	otel.SetTracerProvider(tp)
	return shutdown, nil
}

// exporterOptions accepts "http://host:port", "https://host:port" or a bare
// "host:port".
func exporterOptions(cfg Config) ([]otlptracehttp.Option, error) {
	ep := cfg.OTLPEndpoint
	if ep == "" {
		ep = defaultEndpoint
	}

	endpoint, scheme := ep, ""
	if strings.Contains(ep, "://") {
		u, err := url.Parse(ep)
		if err != nil {
			return nil, fmt.Errorf("parse OTLP endpoint %q: %w", ep, err)
		}
		endpoint, scheme = u.Host, u.Scheme
	}
	if endpoint == "" {
		return nil, fmt.Errorf("OTLP endpoint %q has no host", ep)
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	if cfg.Insecure || scheme == "http" {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return opts, nil
}

// newTracerProviderWithExporter is split out so tests can pass an in-memory
// exporter.
func newTracerProviderWithExporter(exporter sdktrace.SpanExporter, cfg Config) (*sdktrace.TracerProvider, func(context.Context) error, error) {
	res, err := sdkresource.New(context.Background(), sdkresource.WithAttributes(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	))
	if err != nil {
		return nil, nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter)),
	)
	return tp, tp.Shutdown, nil
}
