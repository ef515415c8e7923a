package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/modalprogress/internal/progress"
)

// TestLogSinkLevels keeps render chatter at debug and failures at warn.
func TestLogSinkLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewLogSink(zap.New(core))
	runID := uuid.New()
	id := progress.UUIDToBytes(runID)
	now := time.Now()

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: id, TS: now, Stage: progress.StageRunStart, Title: "Copy"},
		{RunID: id, TS: now, Stage: progress.StageRender, Current: 1, Total: 4},
		{RunID: id, TS: now, Stage: progress.StageExpand, Current: 3, Total: 4},
		{RunID: id, TS: now, Stage: progress.StageRunFailed, Note: "disk full"},
	}))
	require.NoError(t, sink.Close(context.Background()))

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, zapcore.InfoLevel, entries[0].Level)
	require.Equal(t, "RUN_START", entries[0].ContextMap()["stage"])
	require.Equal(t, runID.String(), entries[0].ContextMap()["run_id"])
	require.Equal(t, zapcore.WarnLevel, entries[1].Level)
	require.Equal(t, "disk full", entries[1].ContextMap()["note"])
}
