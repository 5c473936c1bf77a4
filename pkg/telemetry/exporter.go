package telemetry

import (
	"context"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

// logExporter exports completed spans through the structured logger.
type logExporter struct {
	logger *zap.Logger
}

func newLogExporter(logger *zap.Logger) *logExporter {
	return &logExporter{logger: logger}
}

// ExportSpans logs one line per completed span.
func (e *logExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, span := range spans {
		fields := []zap.Field{
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.String("span_id", span.SpanContext().SpanID().String()),
			zap.Duration("duration", span.EndTime().Sub(span.StartTime())),
			zap.String("status", span.Status().Code.String()),
		}
		for _, attr := range span.Attributes() {
			fields = append(fields, zap.Any(string(attr.Key), attr.Value.AsInterface()))
		}
		e.logger.Debug("span "+span.Name(), fields...)
	}
	return nil
}

// Shutdown is a no-op; the logger's lifecycle belongs to the caller.
func (e *logExporter) Shutdown(_ context.Context) error {
	return nil
}

var _ sdktrace.SpanExporter = (*logExporter)(nil)
