package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/modalprogress/internal/store"
)

// RunStore implements store.RunRepository in memory.
type RunStore struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]store.Run
}

var _ store.RunRepository = (*RunStore)(nil)

// NewRunStore constructs an empty RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[uuid.UUID]store.Run)}
}

// UpsertRunStart records the run as running. Re-delivering the start of an
// existing run only refreshes its title.
func (s *RunStore) UpsertRunStart(_ context.Context, runID uuid.UUID, title string, total int64, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.runs[runID]; ok {
		run.Title = title
		s.runs[runID] = run
		return nil
	}
	s.runs[runID] = store.Run{
		ID:        runID,
		Title:     title,
		Status:    store.RunRunning,
		StartedAt: startedAt,
		UpdatedAt: startedAt,
		Total:     total,
	}
	return nil
}

// RecordProgress stores the latest counts for a running run. Unknown or
// finished runs are left alone.
func (s *RunStore) RecordProgress(_ context.Context, runID uuid.UUID, p store.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok || run.Status != store.RunRunning {
		return nil
	}
	applyProgress(&run, p)
	s.runs[runID] = run
	return nil
}

// CompleteRun marks the run finished.
func (s *RunStore) CompleteRun(
	_ context.Context,
	runID uuid.UUID,
	status store.RunStatus,
	final store.Progress,
	errMsg *string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		run = store.Run{ID: runID, StartedAt: final.At}
	}
	applyProgress(&run, final)
	run.Status = status
	finished := final.At
	run.FinishedAt = &finished
	if errMsg != nil {
		msg := *errMsg
		run.ErrorMessage = &msg
	}
	s.runs[runID] = run
	return nil
}

// GetRun returns a copy of one run.
func (s *RunStore) GetRun(_ context.Context, runID uuid.UUID) (store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return store.Run{}, store.ErrNotFound
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (s *RunStore) ListRuns(_ context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	s.mu.RLock()
	out := make([]store.Run, 0, len(s.runs))
	for _, run := range s.runs {
		if status != nil && run.Status != *status {
			continue
		}
		out = append(out, run)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID.String() > out[j].ID.String()
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if offset >= len(out) {
		return []store.Run{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func applyProgress(run *store.Run, p store.Progress) {
	if p.Action != "" {
		run.LastAction = p.Action
	}
	run.Current = p.Current
	run.Total = p.Total
	run.UpdatedAt = p.At
}
