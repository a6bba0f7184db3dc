// Package tracing wires OpenTelemetry tracing for the debugger. Spans are
// emitted around halt handling and remote packet dispatch; the exporter is
// either a pretty-printed stdout writer for development or OTLP over gRPC.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Config holds the configuration for the tracing system
type Config struct {
	// ServiceName is the name of the service being traced
	ServiceName string

	// ExporterType selects the exporter ("stdout" or "otlp")
	ExporterType string

	// OTLPEndpoint is the endpoint for the OTLP exporter (e.g. "localhost:4317")
	OTLPEndpoint string

	// SamplingRate is the rate at which traces are sampled (0.0 to 1.0)
	SamplingRate float64

	// Enabled determines if tracing is enabled
	Enabled bool
}

// DefaultConfig returns a default configuration for development
func DefaultConfig() *Config {
	return &Config{
		ServiceName:  "pawndbg",
		ExporterType: "stdout",
		SamplingRate: 1.0,
		Enabled:      false,
	}
}

// TracerProvider wraps the OpenTelemetry tracer provider
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	config   *Config
}

// InitTracing installs a global tracer provider when tracing is enabled.
// When it is disabled the global provider is left unchanged and an
// unregistered provider is returned. The returned provider must be shut
// down when the process exits.
func InitTracing(config *Config) (*TracerProvider, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if !config.Enabled {
		return &TracerProvider{
			provider: sdktrace.NewTracerProvider(),
			config:   config,
		}, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(config.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	switch config.ExporterType {
	case "otlp":
		client := otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(config.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		exporter, err = otlptrace.New(context.Background(), client)
	default:
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s exporter: %w", config.ExporterType, err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(config.SamplingRate)),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracerProvider{provider: provider, config: config}, nil
}

// Shutdown flushes spans and releases the provider.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp == nil || tp.provider == nil {
		return nil
	}
	return tp.provider.Shutdown(ctx)
}
