package telemetry

import (
	"context"
	"sync/atomic"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

// LogExporter writes one debug line per finished span.
type LogExporter struct {
	logger  *zap.Logger
	stopped atomic.Bool
}

var _ sdktrace.SpanExporter = (*LogExporter)(nil)

// NewLogExporter constructs a LogExporter; a nil logger discards spans.
func NewLogExporter(logger *zap.Logger) *LogExporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogExporter{logger: logger}
}

// ExportSpans implements sdktrace.SpanExporter.
func (e *LogExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	if e.stopped.Load() {
		return nil
	}
	for _, s := range spans {
		fields := []zap.Field{
			zap.String("span", s.Name()),
			zap.String("trace_id", s.SpanContext().TraceID().String()),
			zap.String("span_id", s.SpanContext().SpanID().String()),
			zap.Duration("duration", s.EndTime().Sub(s.StartTime())),
			zap.String("status", s.Status().Code.String()),
		}
		if s.Parent().IsValid() {
			fields = append(fields, zap.String("parent_span_id", s.Parent().SpanID().String()))
		}
		for _, kv := range s.Attributes() {
			fields = append(fields, zap.String(string(kv.Key), kv.Value.Emit()))
		}
		e.logger.Debug("span finished", fields...)
	}
	return nil
}

// Shutdown implements sdktrace.SpanExporter. Later exports are dropped.
func (e *LogExporter) Shutdown(context.Context) error {
	e.stopped.Store(true)
	return nil
}
