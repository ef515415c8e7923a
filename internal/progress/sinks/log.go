package sinks

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/modalprogress/internal/progress"
)

// LogSink emits structured logs for run events. Render events are logged at
// debug level since they arrive at the display interval.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		level := zapcore.InfoLevel
		switch evt.Stage {
		case progress.StageRender, progress.StageExpand:
			level = zapcore.DebugLevel
		case progress.StageRunFailed:
			level = zapcore.WarnLevel
		}
		ce := s.logger.Check(level, "run event")
		if ce == nil {
			continue
		}
		ce.Write(
			zap.String("run_id", evt.RunUUID().String()),
			zap.String("stage", string(evt.Stage)),
			zap.String("title", evt.Title),
			zap.String("action", evt.Action),
			zap.Int64("current", evt.Current),
			zap.Int64("total", evt.Total),
			zap.Duration("elapsed", evt.Elapsed),
			zap.Duration("eta", evt.ETA),
			zap.String("note", evt.Note),
		)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
