package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RunState is the coarse lifecycle state of an Engine.
type RunState int32

// Engine states. Terminal outcomes are reported through Result; once Start
// returns the engine is Idle again.
const (
	Idle RunState = iota
	Running
)

func (s RunState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result of a run.
type Outcome string

// Run outcomes.
const (
	Completed Outcome = "completed"
	Cancelled Outcome = "cancelled"
	Failed    Outcome = "failed"
)

// WorkFunc is the unit of work executed on the background goroutine. ctx is
// cancelled once cancellation is requested; arg is passed through from Start.
// The function should call the Reporter regularly and return promptly after a
// report returns false.
type WorkFunc func(ctx context.Context, arg any, r Reporter) error

// Reporter is the worker's only handle back into the engine.
type Reporter interface {
	// ReportIncrement sets the action text and advances the count by one.
	// It returns false once cancellation has been requested.
	ReportIncrement(action string) bool
	// ReportSpecific sets the action text and applies explicit count and
	// ceiling values. Without WithCount it behaves like ReportIncrement.
	ReportSpecific(action string, opts ...ReportOption) bool
}

// ReportOption supplies optional values to ReportSpecific.
type ReportOption func(*ReportValues)

// ReportValues holds the optional values carried by a ReportSpecific call.
type ReportValues struct {
	count *int64
	total *int64
}

// ApplyReportOptions folds opts into ReportValues. Reporter implementations
// outside this package use it to read the options.
func ApplyReportOptions(opts ...ReportOption) ReportValues {
	var v ReportValues
	for _, opt := range opts {
		if opt != nil {
			opt(&v)
		}
	}
	return v
}

// Count returns the explicit count, if one was given.
func (v ReportValues) Count() (int64, bool) {
	if v.count == nil {
		return 0, false
	}
	return *v.count, true
}

// Total returns the proposed total, if one was given.
func (v ReportValues) Total() (int64, bool) {
	if v.total == nil {
		return 0, false
	}
	return *v.total, true
}

// WithCount sets the current count to n exactly; it may move backwards.
// n must be >= 0.
func WithCount(n int64) ReportOption {
	return func(v *ReportValues) { v.count = &n }
}

// WithTotal raises the estimated total to n if n is above the current
// estimate. Lower values are ignored. n must be >= 0.
func WithTotal(n int64) ReportOption {
	return func(v *ReportValues) { v.total = &n }
}

// ScaleMax is the resolution of Snapshot.Scaled.
const ScaleMax = 10000

// Snapshot is everything a render surface needs to draw one frame.
type Snapshot struct {
	Title string
	// Fraction is Current/Total clamped to [0, 1].
	Fraction float64
	// Scaled is Fraction mapped onto 0..ScaleMax.
	Scaled int
	Action string
	// Counts is "N / M", empty when hidden or when Total <= 1.
	Counts string
	// ETA is "Approx. ... remaining.", empty when suppressed.
	ETA     string
	Current int64
	Total   int64
}

// Renderer is the render surface. The engine opens it when a run starts,
// renders snapshots from the worker goroutine and closes it on every exit path
// before Start returns. Render must apply the snapshot before returning.
type Renderer interface {
	// Open prepares the surface. cancel is the surface's cancel affordance;
	// it is safe to call from any goroutine, any number of times.
	Open(cancel func()) error
	Render(s Snapshot)
	Close() error
}

// Result describes how a run ended.
type Result struct {
	RunID   uuid.UUID
	Outcome Outcome
	Current int64
	Total   int64
	Elapsed time.Duration
}

// Status is a point-in-time copy of the engine's progress for observers.
type Status struct {
	State           RunState
	RunID           uuid.UUID
	Title           string
	Action          string
	Current         int64
	Total           int64
	StartedAt       time.Time
	Elapsed         time.Duration
	CancelRequested bool
}

// Preferences are the display knobs. They belong to the engine, survive
// across runs and may be changed while a run is in flight.
type Preferences struct {
	DisplayCounts            bool
	DisplayTimeEstimates     bool
	TimeEstimateInitialDelay time.Duration
	DisplayInterval          time.Duration
}

// DefaultPreferences shows counts and ETAs, waits 2s before the first ETA
// and renders at most every 500ms.
func DefaultPreferences() Preferences {
	return Preferences{
		DisplayCounts:            true,
		DisplayTimeEstimates:     true,
		TimeEstimateInitialDelay: 2 * time.Second,
		DisplayInterval:          500 * time.Millisecond,
	}
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// IDGenerator mints run identifiers.
type IDGenerator interface {
	NewRawID() (uuid.UUID, error)
}
