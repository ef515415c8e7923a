package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/modalprogress/internal/clock/system"
	idgen "github.com/JakeFAU/modalprogress/internal/id/uuid"
	"github.com/JakeFAU/modalprogress/internal/progress"
)

// Config wires an Engine. Every field is optional.
type Config struct {
	// Preferences seeds the display knobs; nil means DefaultPreferences.
	Preferences *Preferences
	// Renderer is the render surface; nil renders nothing.
	Renderer Renderer
	Clock    Clock
	IDs      IDGenerator
	// Emitter receives run lifecycle and render events.
	Emitter progress.Emitter
	Logger  *zap.Logger
}

// Engine runs one unit of work at a time and coordinates progress reports,
// rendering and cancellation for it.
type Engine struct {
	renderer Renderer
	clock    Clock
	ids      IDGenerator
	emitter  progress.Emitter
	logger   *zap.Logger

	// Display preferences: written by anyone, read on the report path.
	title         atomic.Pointer[string]
	displayCounts atomic.Bool
	displayETA    atomic.Bool
	etaDelay      atomic.Int64
	interval      atomic.Int64

	active        atomic.Bool
	cancelPending atomic.Bool
	cancelWork    atomic.Pointer[context.CancelFunc]

	mu  sync.Mutex
	cur *run

	// renderMu keeps frames in order on the surface; it is never held with mu.
	renderMu sync.Mutex
}

// run is the per-run progress state. It is created by Start, mutated only
// under Engine.mu and dropped when the run ends.
type run struct {
	id          uuid.UUID
	startedAt   time.Time
	action      string
	current     int64
	total       int64
	lastRender  *time.Time
	cancelAcked bool
}

// New builds an idle Engine.
func New(cfg Config) *Engine {
	prefs := DefaultPreferences()
	if cfg.Preferences != nil {
		prefs = *cfg.Preferences
	}
	e := &Engine{
		renderer: cfg.Renderer,
		clock:    cfg.Clock,
		ids:      cfg.IDs,
		emitter:  cfg.Emitter,
		logger:   cfg.Logger,
	}
	if e.renderer == nil {
		e.renderer = nopRenderer{}
	}
	if e.clock == nil {
		e.clock = system.New()
	}
	if e.ids == nil {
		e.ids = idgen.NewUUIDGenerator()
	}
	if e.emitter == nil {
		e.emitter = progress.NopEmitter{}
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	e.SetPreferences(prefs)
	e.SetTitle("")
	return e
}

// Start runs work on a background goroutine and blocks until it finishes.
// It opens the renderer, renders an initial frame, and closes the renderer
// before returning on every path. Cancelling ctx is the same as calling
// RequestCancel.
//
// A failing work function yields a Failed result and a *WorkerFaultError.
// If the first frame panics the run fails before work is started.
// Calling Start while a run is active returns a *ConcurrentRunError that
// matches ErrConcurrentRun.
func (e *Engine) Start(
	ctx context.Context,
	title string,
	initialAction string,
	estimate int64,
	work WorkFunc,
	arg any,
) (Result, error) {
	if work == nil {
		return Result{}, errors.New("engine: work function is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !e.active.CompareAndSwap(false, true) {
		e.mu.Lock()
		var active uuid.UUID
		if e.cur != nil {
			active = e.cur.id
		}
		e.mu.Unlock()
		return Result{}, &ConcurrentRunError{ActiveRunID: active}
	}
	defer func() {
		e.cancelPending.Store(false)
		e.active.Store(false)
	}()

	id, err := e.ids.NewRawID()
	if err != nil {
		return Result{}, fmt.Errorf("generate run id: %w", err)
	}
	log := e.logger.With(zap.String("run_id", id.String()))

	workCtx, cancelWork := context.WithCancel(ctx)
	defer cancelWork()
	e.cancelWork.Store(&cancelWork)
	defer e.cancelWork.Store(nil)
	if e.cancelPending.Load() {
		cancelWork()
	}
	stopWatch := context.AfterFunc(ctx, e.RequestCancel)
	defer stopWatch()

	e.SetTitle(title)
	r := &run{
		id:        id,
		startedAt: e.clock.Now(),
		action:    initialAction,
		total:     max(1, estimate),
	}
	e.mu.Lock()
	e.cur = r
	e.mu.Unlock()

	if err := e.renderer.Open(e.RequestCancel); err != nil {
		e.mu.Lock()
		e.cur = nil
		e.mu.Unlock()
		return Result{}, fmt.Errorf("open render surface: %w", err)
	}

	log.Info("run started", zap.String("title", title), zap.Int64("estimate", r.total))
	if err := e.openingFrame(id); err != nil {
		if closeErr := e.renderer.Close(); closeErr != nil {
			log.Warn("close render surface failed", zap.Error(closeErr))
		}
		res := Result{
			RunID:   id,
			Outcome: Failed,
			Total:   r.total,
			Elapsed: e.clock.Now().Sub(r.startedAt),
		}
		log.Error("initial render failed", zap.Error(err))
		e.finish(res, err)
		return res, fmt.Errorf("initial render: %w", err)
	}

	done := make(chan error, 1)
	rep := &reporter{engine: e, runID: id}
	go func() {
		done <- e.execute(workCtx, work, arg, rep)
	}()
	workErr := <-done

	closeErr := e.renderer.Close()

	e.mu.Lock()
	final := *r
	e.mu.Unlock()

	res := Result{
		RunID:   id,
		Current: final.current,
		Total:   final.total,
		Elapsed: e.clock.Now().Sub(final.startedAt),
		Outcome: e.outcome(ctx, final.cancelAcked, workErr),
	}
	e.finish(res, workErr)

	switch res.Outcome {
	case Failed:
		if closeErr != nil {
			log.Warn("close render surface failed", zap.Error(closeErr))
		}
		log.Error("run failed", zap.Error(workErr), zap.Duration("elapsed", res.Elapsed))
		return res, &WorkerFaultError{RunID: id, Err: workErr}
	case Cancelled:
		log.Info("run cancelled", zap.Int64("current", res.Current), zap.Duration("elapsed", res.Elapsed))
	default:
		log.Info("run completed", zap.Int64("current", res.Current), zap.Duration("elapsed", res.Elapsed))
	}
	if closeErr != nil {
		return res, fmt.Errorf("close render surface: %w", closeErr)
	}
	return res, nil
}

// outcome decides the terminal state. An acknowledged cancel wins over any
// error the worker returned on its way out. ctx is the caller's context; its
// cancellation may not have reached RequestCancel yet.
func (e *Engine) outcome(ctx context.Context, cancelAcked bool, workErr error) Outcome {
	cancelled := e.cancelPending.Load() || ctx.Err() != nil
	switch {
	case cancelAcked:
		return Cancelled
	case workErr != nil && cancelled && errors.Is(workErr, context.Canceled):
		return Cancelled
	case workErr != nil:
		return Failed
	default:
		return Completed
	}
}

// openingFrame announces the run and draws its first frame. A panicking
// render surface or emitter is returned as a *PanicError.
func (e *Engine) openingFrame(id uuid.UUID) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &PanicError{Value: rec, Stack: debug.Stack()}
		}
	}()
	e.emitLifecycle(id, progress.StageRunStart, "")
	e.renderIfDue(id)
	return nil
}

// finish emits the terminal event and drops the run state.
func (e *Engine) finish(res Result, workErr error) {
	defer func() {
		e.mu.Lock()
		e.cur = nil
		e.mu.Unlock()
	}()
	stage := progress.StageRunDone
	note := ""
	switch res.Outcome {
	case Cancelled:
		stage = progress.StageRunCancelled
	case Failed:
		stage = progress.StageRunFailed
		note = workErr.Error()
	}
	e.emitLifecycle(res.RunID, stage, note)
}

func (e *Engine) execute(ctx context.Context, work WorkFunc, arg any, rep Reporter) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &PanicError{Value: rec, Stack: debug.Stack()}
		}
	}()
	return work(ctx, arg, rep)
}

// RequestCancel asks the active run to stop. It never waits: the worker sees
// the request at its next report. Calls while idle are ignored.
func (e *Engine) RequestCancel() {
	if !e.active.Load() {
		return
	}
	if e.cancelPending.Swap(true) {
		return
	}
	if fn := e.cancelWork.Load(); fn != nil {
		(*fn)()
	}
	e.mu.Lock()
	r := e.cur
	var id uuid.UUID
	if r != nil {
		id = r.id
	}
	e.mu.Unlock()
	if r == nil {
		return
	}
	e.logger.Info("run cancellation requested", zap.String("run_id", id.String()))
	e.emitLifecycle(id, progress.StageCancelRequested, "")
}

// State reports whether a run is active.
func (e *Engine) State() RunState {
	if e.active.Load() {
		return Running
	}
	return Idle
}

// Status returns a copy of the current progress. The zero RunID means no run
// is in flight.
func (e *Engine) Status() Status {
	now := e.clock.Now()
	st := Status{
		State:           e.State(),
		Title:           e.Title(),
		CancelRequested: e.cancelPending.Load(),
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if r := e.cur; r != nil {
		st.RunID = r.id
		st.Action = r.action
		st.Current = r.current
		st.Total = r.total
		st.StartedAt = r.startedAt
		st.Elapsed = now.Sub(r.startedAt)
	}
	return st
}

// Title returns the current display title.
func (e *Engine) Title() string {
	if t := e.title.Load(); t != nil {
		return *t
	}
	return ""
}

// SetTitle changes the display title; the next render shows it.
func (e *Engine) SetTitle(title string) {
	e.title.Store(&title)
}

// SetDisplayCounts toggles the "N / M" label.
func (e *Engine) SetDisplayCounts(on bool) {
	e.displayCounts.Store(on)
}

// SetDisplayTimeEstimates toggles the ETA label.
func (e *Engine) SetDisplayTimeEstimates(on bool) {
	e.displayETA.Store(on)
}

// SetTimeEstimateInitialDelay sets how long after start ETAs stay hidden.
func (e *Engine) SetTimeEstimateInitialDelay(d time.Duration) {
	e.etaDelay.Store(int64(max(d, 0)))
}

// SetDisplayInterval sets the minimum spacing between renders.
func (e *Engine) SetDisplayInterval(d time.Duration) {
	e.interval.Store(int64(max(d, 0)))
}

// SetPreferences applies all display knobs at once. Each knob is stored on
// its own, so a concurrent report may observe a mix of old and new values.
func (e *Engine) SetPreferences(p Preferences) {
	e.SetDisplayCounts(p.DisplayCounts)
	e.SetDisplayTimeEstimates(p.DisplayTimeEstimates)
	e.SetTimeEstimateInitialDelay(p.TimeEstimateInitialDelay)
	e.SetDisplayInterval(p.DisplayInterval)
}

// Preferences returns the display knobs currently in effect.
func (e *Engine) Preferences() Preferences {
	return Preferences{
		DisplayCounts:            e.displayCounts.Load(),
		DisplayTimeEstimates:     e.displayETA.Load(),
		TimeEstimateInitialDelay: time.Duration(e.etaDelay.Load()),
		DisplayInterval:          time.Duration(e.interval.Load()),
	}
}

type nopRenderer struct{}

func (nopRenderer) Open(func()) error { return nil }
func (nopRenderer) Render(Snapshot)   {}
func (nopRenderer) Close() error      { return nil }
