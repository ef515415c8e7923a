package sinks

import (
	"time"

	"github.com/JakeFAU/modalprogress/internal/progress"
)

// RunSummary is the JSON document archived and published when a run ends.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	Title      string    `json:"title"`
	Outcome    string    `json:"outcome"`
	LastAction string    `json:"last_action,omitempty"`
	Current    int64     `json:"current"`
	Total      int64     `json:"total"`
	ElapsedMS  int64     `json:"elapsed_ms"`
	FinishedAt time.Time `json:"finished_at"`
	Error      string    `json:"error,omitempty"`
}

// NewRunSummary builds a summary from a terminal event.
func NewRunSummary(evt progress.Event) RunSummary {
	sum := RunSummary{
		RunID:      evt.RunUUID().String(),
		Title:      evt.Title,
		Outcome:    outcomeLabel(evt.Stage),
		LastAction: evt.Action,
		Current:    evt.Current,
		Total:      evt.Total,
		ElapsedMS:  evt.Elapsed.Milliseconds(),
		FinishedAt: evt.TS.UTC(),
	}
	if evt.Stage == progress.StageRunFailed {
		sum.Error = evt.Note
	}
	return sum
}
