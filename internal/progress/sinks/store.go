package sinks

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/modalprogress/internal/progress"
	"github.com/JakeFAU/modalprogress/internal/store"
)

// StoreSink persists run history via a store.RunRepository. Render and
// expansion events are collapsed to the latest counts per run before writing.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume applies the batch in order. Pending progress for a run is flushed
// before its next lifecycle write, so a terminal row is never overwritten by
// an older count. Repository errors are returned to the hub.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	pending := make(map[uuid.UUID]store.Progress)
	var order []uuid.UUID

	flush := func(runID uuid.UUID) error {
		p, ok := pending[runID]
		if !ok {
			return nil
		}
		delete(pending, runID)
		if err := s.repo.RecordProgress(ctx, runID, p); err != nil {
			return fmt.Errorf("record progress: %w", err)
		}
		return nil
	}

	for _, evt := range batch {
		runID := evt.RunUUID()
		switch evt.Stage {
		case progress.StageRender, progress.StageExpand:
			prev, seen := pending[runID]
			if !seen {
				order = append(order, runID)
			}
			p := store.Progress{Action: evt.Action, Current: evt.Current, Total: evt.Total, At: evt.TS}
			if p.Action == "" {
				p.Action = prev.Action
			}
			pending[runID] = p
		case progress.StageRunStart:
			if err := s.repo.UpsertRunStart(ctx, runID, evt.Title, evt.Total, evt.TS); err != nil {
				return fmt.Errorf("upsert run start: %w", err)
			}
		case progress.StageRunDone, progress.StageRunCancelled, progress.StageRunFailed:
			if err := flush(runID); err != nil {
				return err
			}
			if err := s.complete(ctx, runID, evt); err != nil {
				return err
			}
		}
	}
	for _, runID := range order {
		if err := flush(runID); err != nil {
			return err
		}
	}
	return nil
}

func (s *StoreSink) complete(ctx context.Context, runID uuid.UUID, evt progress.Event) error {
	status := store.RunCompleted
	var note *string
	switch evt.Stage {
	case progress.StageRunCancelled:
		status = store.RunCancelled
	case progress.StageRunFailed:
		status = store.RunFailed
		if evt.Note != "" {
			note = &evt.Note
		}
	}
	final := store.Progress{Action: evt.Action, Current: evt.Current, Total: evt.Total, At: evt.TS}
	if err := s.repo.CompleteRun(ctx, runID, status, final, note); err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	s.logger.Debug("run history closed", zap.String("run_id", runID.String()), zap.String("status", string(status)))
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
