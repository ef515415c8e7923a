// Package store declares interfaces for persisting run history.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("run record not found")

// RunStatus mirrors the runs.status column.
type RunStatus string

// Run statuses persisted in runs.status.
const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunCancelled RunStatus = "cancelled"
	RunFailed    RunStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s RunStatus) Valid() bool {
	switch s {
	case RunRunning, RunCompleted, RunCancelled, RunFailed:
		return true
	default:
		return false
	}
}

// Run models one row of the runs table.
type Run struct {
	ID    uuid.UUID
	Title string
	// Status is running until the run reaches a terminal outcome.
	Status     RunStatus
	StartedAt  time.Time
	UpdatedAt  time.Time
	FinishedAt *time.Time
	// LastAction is the most recent non-empty action text.
	LastAction string
	Current    int64
	Total      int64
	// ErrorMessage is set for failed runs only.
	ErrorMessage *string
}

// Progress is a point-in-time count for a run.
type Progress struct {
	Action  string
	Current int64
	Total   int64
	At      time.Time
}

// RunRepository persists run lifecycle and progress.
type RunRepository interface {
	// UpsertRunStart inserts the run as running, or refreshes it idempotently.
	UpsertRunStart(ctx context.Context, runID uuid.UUID, title string, total int64, startedAt time.Time) error
	// RecordProgress stores the latest counts. An empty action keeps the
	// previous one.
	RecordProgress(ctx context.Context, runID uuid.UUID, p Progress) error
	// CompleteRun marks the run finished with its terminal status.
	CompleteRun(ctx context.Context, runID uuid.UUID, status RunStatus, final Progress, errMsg *string) error

	// GetRun loads one run or returns ErrNotFound.
	GetRun(ctx context.Context, runID uuid.UUID) (Run, error)
	// ListRuns returns runs newest first, filtered by optional status.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]Run, error)
}
