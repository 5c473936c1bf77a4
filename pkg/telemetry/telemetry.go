// Package telemetry wires OpenTelemetry tracing for the pipeline. Spans
// are exported through the structured logger, which keeps traces visible
// in local and single-binary deployments without an external collector.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// tracerName is the instrumentation scope for all pipeline spans.
const tracerName = "github.com/engramlabs/engram"

// DefaultServiceName identifies this service on exported spans.
const DefaultServiceName = "engram"

// Config holds configuration for tracing.
type Config struct {
	// Enabled turns span recording on. When off the global no-op provider
	// stays in place and Tracer() produces inert spans.
	Enabled bool

	// ServiceName overrides DefaultServiceName on the span resource.
	ServiceName string
}

// Tracer returns the module's tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// Setup installs the global tracer provider and returns its shutdown
// function. Call the shutdown function before process exit to flush spans.
func Setup(_ context.Context, c Config, logger *zap.Logger) (func(context.Context) error, error) {
	if !c.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	serviceName := c.ServiceName
	if serviceName == "" {
		serviceName = DefaultServiceName
	}

	res := resource.NewSchemaless(attribute.String("service.name", serviceName))

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(newLogExporter(logger))),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
