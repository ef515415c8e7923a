package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitTracerProviderExportsSpans(t *testing.T) {
	t.Parallel()

	exp := tracetest.NewInMemoryExporter()
	tp, err := InitTracerProvider(context.Background(), Config{ServiceName: "test", Exporter: exp}, nil)
	require.NoError(t, err)

	ctx, parent := tp.Tracer("test").Start(context.Background(), "parent")
	_, child := tp.Tracer("test").Start(ctx, "child")
	child.End()
	parent.End()
	require.NoError(t, tp.Shutdown(context.Background()))

	spans := exp.GetSpans()
	require.Len(t, spans, 2)
	require.Equal(t, "child", spans[0].Name)
	require.Equal(t, spans[1].SpanContext.SpanID(), spans[0].Parent.SpanID())
	svc, ok := spans[1].Resource.Set().Value("service.name")
	require.True(t, ok)
	require.Equal(t, "test", svc.AsString())
}

func TestLogExporterWritesSpanFields(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	tp, err := InitTracerProvider(context.Background(), Config{}, zap.New(core))
	require.NoError(t, err)

	_, span := tp.Tracer("test").Start(context.Background(), "progress.run")
	span.SetAttributes(attribute.String("run.title", "Backup"))
	span.End()
	require.NoError(t, tp.Shutdown(context.Background()))

	entries := logs.FilterMessage("span finished").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "progress.run", fields["span"])
	require.Equal(t, "Backup", fields["run.title"])
	require.NotEmpty(t, fields["trace_id"])
}

func TestLogExporterDropsAfterShutdown(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	exp := NewLogExporter(zap.New(core))
	require.NoError(t, exp.Shutdown(context.Background()))

	stub := tracetest.SpanStub{Name: "late"}
	require.NoError(t, exp.ExportSpans(context.Background(), tracetest.SpanStubs{stub}.Snapshots()))
	require.Zero(t, logs.Len())
}
