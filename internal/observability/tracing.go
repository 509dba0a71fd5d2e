package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// TraceConfig configures distributed tracing.
type TraceConfig struct {
	// ServiceName identifies this service in traces.
	ServiceName string `yaml:"service_name"`

	// Endpoint is the OTLP gRPC collector endpoint (e.g. "localhost:4317").
	// Tracing is disabled when empty.
	Endpoint string `yaml:"endpoint"`

	// SamplingRate controls what fraction of traces are recorded (0.0–1.0).
	// Defaults to 1.0.
	SamplingRate float64 `yaml:"sampling_rate"`

	// Insecure disables TLS for the OTLP connection (dev only).
	Insecure bool `yaml:"insecure"`
}

// NewTracer sets up the global tracer provider and returns a tracer plus a
// shutdown function. With no endpoint configured it returns a no-op tracer.
func NewTracer(config TraceConfig) (trace.Tracer, func(context.Context) error) {
	if config.ServiceName == "" {
		config.ServiceName = "haven"
	}
	if config.Endpoint == "" {
		return otel.Tracer(config.ServiceName), func(context.Context) error { return nil }
	}
	if config.SamplingRate == 0 {
		config.SamplingRate = 1.0
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(config.Endpoint)}
	if config.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptrace.New(context.Background(), otlptracegrpc.NewClient(opts...))
	if err != nil {
		return otel.Tracer(config.ServiceName), func(context.Context) error { return nil }
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(semconv.ServiceName(config.ServiceName)))
	if err != nil {
		res = resource.Default()
	}

	var sampler sdktrace.Sampler
	switch {
	case config.SamplingRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case config.SamplingRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(config.SamplingRate)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return provider.Tracer(config.ServiceName), provider.Shutdown
}
