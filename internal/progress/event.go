package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes which run milestone an Event represents.
type Stage string

// Supported run stages.
const (
	StageRunStart        Stage = "RUN_START"
	StageRender          Stage = "RUN_RENDER"
	StageExpand          Stage = "RUN_EXPAND"
	StageCancelRequested Stage = "RUN_CANCEL_REQUESTED"
	StageRunDone         Stage = "RUN_DONE"
	StageRunCancelled    Stage = "RUN_CANCELLED"
	StageRunFailed       Stage = "RUN_FAILED"
)

// Event captures one observable step of a run.
type Event struct {
	// RunID identifies the run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the timestamp taken from the engine clock.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Title is the run title at the time of the event.
	Title string
	// Action is the worker's current status text, possibly empty.
	Action string
	// Current and Total are the progress counts when the event was taken.
	Current int64
	Total   int64
	// Elapsed is the time since the run started.
	Elapsed time.Duration
	// ETA is the remaining-time estimate carried by render events, 0 if none.
	ETA time.Duration
	// Note carries low-volume context such as the failure message.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRender, StageExpand, StageCancelRequested,
		StageRunDone, StageRunCancelled, StageRunFailed:
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Current < 0 || e.Total < 0 {
		return errors.New("counts must be >= 0")
	}
	if e.Elapsed < 0 || e.ETA < 0 {
		return errors.New("durations must be >= 0")
	}
	return nil
}

// Terminal reports whether the event closes a run.
func (e Event) Terminal() bool {
	switch e.Stage {
	case StageRunDone, StageRunCancelled, StageRunFailed:
		return true
	default:
		return false
	}
}

// RunUUID converts the binary run ID to uuid.UUID for repositories.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// Sink consumes batches of run events. Implementations must be safe for
// repeated calls and honor ctx deadlines.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events. The engine depends only on this.
type Emitter interface {
	Emit(evt Event)
}

// NopEmitter discards every event.
type NopEmitter struct{}

// Emit implements Emitter.
func (NopEmitter) Emit(Event) {}
