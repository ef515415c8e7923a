package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/modalprogress/internal/eta"
	"github.com/JakeFAU/modalprogress/internal/progress"
	"github.com/JakeFAU/modalprogress/internal/throttle"
	"github.com/JakeFAU/modalprogress/internal/timefmt"
)

// reporter binds report calls to one run so a handle leaked from an earlier
// run cannot touch a later one.
type reporter struct {
	engine *Engine
	runID  uuid.UUID
}

func (r *reporter) ReportIncrement(action string) bool {
	return r.engine.report(r.runID, action, ReportValues{})
}

func (r *reporter) ReportSpecific(action string, opts ...ReportOption) bool {
	return r.engine.report(r.runID, action, ApplyReportOptions(opts...))
}

// frame is a rendered snapshot plus the event describing it.
type frame struct {
	snap Snapshot
	evt  progress.Event
}

func (e *Engine) report(runID uuid.UUID, action string, u ReportValues) bool {
	if u.count != nil && *u.count < 0 {
		panic(fmt.Sprintf("engine: negative progress count %d", *u.count))
	}
	if u.total != nil && *u.total < 0 {
		panic(fmt.Sprintf("engine: negative total estimate %d", *u.total))
	}
	now := e.clock.Now()
	prefs := e.Preferences()

	e.mu.Lock()
	r := e.cur
	if r == nil || r.id != runID {
		e.mu.Unlock()
		return false
	}
	if e.cancelPending.Load() {
		first := !r.cancelAcked
		r.cancelAcked = true
		e.mu.Unlock()
		if first {
			e.logger.Info("run cancellation acknowledged", zap.String("run_id", runID.String()))
		}
		return false
	}

	r.action = action
	if u.total != nil && *u.total > r.total {
		r.total = *u.total
	}
	expanded := false
	if u.count != nil {
		r.current = *u.count
	} else {
		// Never let an increment fill the bar.
		if r.current >= r.total-1 {
			r.total++
			expanded = true
		}
		r.current++
	}
	var expandEvt progress.Event
	if expanded {
		expandEvt = e.eventLocked(r, progress.StageExpand, now)
	}
	f, due := e.frameLocked(r, now, prefs)
	e.mu.Unlock()

	if expanded {
		e.emitter.Emit(expandEvt)
	}
	if due {
		e.present(f)
	}
	return true
}

// renderIfDue runs the render decision outside of a report.
func (e *Engine) renderIfDue(runID uuid.UUID) {
	now := e.clock.Now()
	prefs := e.Preferences()
	e.mu.Lock()
	r := e.cur
	if r == nil || r.id != runID {
		e.mu.Unlock()
		return
	}
	f, due := e.frameLocked(r, now, prefs)
	e.mu.Unlock()
	if due {
		e.present(f)
	}
}

// frameLocked builds the next frame if the throttle allows one and records
// the render time. e.mu must be held.
func (e *Engine) frameLocked(r *run, now time.Time, prefs Preferences) (frame, bool) {
	if !throttle.ShouldRender(now, r.lastRender, prefs.DisplayInterval) {
		return frame{}, false
	}
	r.lastRender = &now

	snap := Snapshot{
		Title:    e.Title(),
		Action:   r.action,
		Current:  r.current,
		Total:    r.total,
		Fraction: fraction(r.current, r.total),
	}
	snap.Scaled = int(snap.Fraction * ScaleMax)
	if prefs.DisplayCounts && r.total > 1 {
		snap.Counts = fmt.Sprintf("%d / %d", r.current, r.total)
	}
	est := eta.Estimator{
		Enabled:      prefs.DisplayTimeEstimates,
		InitialDelay: prefs.TimeEstimateInitialDelay,
	}
	evt := e.eventLocked(r, progress.StageRender, now)
	if remaining, ok := est.Estimate(now.Sub(r.startedAt), r.current, r.total); ok {
		snap.ETA = timefmt.Describe(remaining) + " remaining."
		evt.ETA = remaining
	}
	return frame{snap: snap, evt: evt}, true
}

func (e *Engine) present(f frame) {
	e.renderSnapshot(f.snap)
	e.emitter.Emit(f.evt)
}

func (e *Engine) renderSnapshot(s Snapshot) {
	e.renderMu.Lock()
	defer e.renderMu.Unlock()
	e.renderer.Render(s)
}

func (e *Engine) eventLocked(r *run, stage progress.Stage, now time.Time) progress.Event {
	return progress.Event{
		RunID:   progress.UUIDToBytes(r.id),
		TS:      now,
		Stage:   stage,
		Title:   e.Title(),
		Action:  r.action,
		Current: r.current,
		Total:   r.total,
		Elapsed: max(now.Sub(r.startedAt), 0),
	}
}

func (e *Engine) emitLifecycle(runID uuid.UUID, stage progress.Stage, note string) {
	now := e.clock.Now()
	e.mu.Lock()
	r := e.cur
	if r == nil || r.id != runID {
		e.mu.Unlock()
		return
	}
	evt := e.eventLocked(r, stage, now)
	e.mu.Unlock()
	evt.Note = note
	e.emitter.Emit(evt)
}

func fraction(current, total int64) float64 {
	if total <= 0 {
		return 0
	}
	f := float64(current) / float64(total)
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
