package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/modalprogress/internal/progress"
)

// TestIncrementsBelowCeilingKeepEstimate walks nine increments against an estimate of ten.
func TestIncrementsBelowCeilingKeepEstimate(t *testing.T) {
	t.Parallel()

	eng, _, _ := newTestEngine(nil)
	var afterNine Status
	var afterTen Status
	res, err := eng.Start(context.Background(), "Copying", "", 10, func(_ context.Context, _ any, r Reporter) error {
		for i := 0; i < 9; i++ {
			if !r.ReportIncrement("") {
				return errors.New("unexpected cancel")
			}
		}
		afterNine = eng.Status()
		r.ReportIncrement("")
		afterTen = eng.Status()
		return nil
	}, nil)
	require.NoError(t, err)
	require.Equal(t, Completed, res.Outcome)

	require.Equal(t, int64(9), afterNine.Current)
	require.Equal(t, int64(10), afterNine.Total)

	require.Equal(t, int64(10), afterTen.Current)
	require.Equal(t, int64(11), afterTen.Total)
	require.Equal(t, int64(10), res.Current)
	require.Equal(t, int64(11), res.Total)
}

// TestIncrementNeverReachesCeiling checks total stays strictly above current for long increment runs.
func TestIncrementNeverReachesCeiling(t *testing.T) {
	t.Parallel()

	for _, estimate := range []int64{-5, 0, 1, 2, 7, 100} {
		eng, _, _ := newTestEngine(nil)
		var violations []Status
		_, err := eng.Start(context.Background(), "loop", "", estimate, func(_ context.Context, _ any, r Reporter) error {
			for i := 0; i < 250; i++ {
				r.ReportIncrement("step")
				if st := eng.Status(); st.Total <= st.Current {
					violations = append(violations, st)
				}
			}
			return nil
		}, nil)
		require.NoError(t, err)
		require.Empty(t, violations, "estimate %d", estimate)
	}
}

// TestReportSpecificNeverLowersCeiling ensures lower totals are ignored and counts may move backwards.
func TestReportSpecificNeverLowersCeiling(t *testing.T) {
	t.Parallel()

	eng, _, _ := newTestEngine(nil)
	var seen []Status
	_, err := eng.Start(context.Background(), "t", "", 50, func(_ context.Context, _ any, r Reporter) error {
		r.ReportSpecific("a", WithTotal(80))
		seen = append(seen, eng.Status())
		r.ReportSpecific("b", WithTotal(10), WithCount(30))
		seen = append(seen, eng.Status())
		r.ReportSpecific("c", WithCount(12))
		seen = append(seen, eng.Status())
		return nil
	}, nil)
	require.NoError(t, err)

	require.Equal(t, int64(80), seen[0].Total)
	require.Equal(t, int64(1), seen[0].Current, "no explicit count means increment")
	require.Equal(t, int64(80), seen[1].Total)
	require.Equal(t, int64(30), seen[1].Current)
	require.Equal(t, int64(80), seen[2].Total)
	require.Equal(t, int64(12), seen[2].Current)
	require.Equal(t, "c", seen[2].Action)
}

// TestCancelBeforeReportLeavesStateUntouched covers a cancel observed at the next report.
func TestCancelBeforeReportLeavesStateUntouched(t *testing.T) {
	t.Parallel()

	eng, renderer, _ := newTestEngine(nil)
	var before, after Status
	var cont bool
	res, err := eng.Start(context.Background(), "t", "", 10, func(ctx context.Context, _ any, r Reporter) error {
		r.ReportIncrement("one")
		r.ReportIncrement("two")
		before = eng.Status()
		eng.RequestCancel()
		cont = r.ReportSpecific("three", WithCount(7), WithTotal(99))
		after = eng.Status()
		if ctx.Err() == nil {
			return errors.New("work context should be cancelled")
		}
		return nil
	}, nil)
	require.NoError(t, err)
	require.False(t, cont)
	require.Equal(t, Cancelled, res.Outcome)
	require.Equal(t, before.Current, after.Current)
	require.Equal(t, before.Total, after.Total)
	require.Equal(t, "two", after.Action)
	require.True(t, after.CancelRequested)
	require.True(t, renderer.Closed())
}

// TestWorkerErrorAfterReportsFails covers a worker fault surfacing after cleanup.
func TestWorkerErrorAfterReportsFails(t *testing.T) {
	t.Parallel()

	eng, renderer, _ := newTestEngine(nil)
	boom := errors.New("disk full")
	res, err := eng.Start(context.Background(), "t", "", 10, func(_ context.Context, _ any, r Reporter) error {
		for i := 0; i < 3; i++ {
			r.ReportIncrement("")
		}
		return boom
	}, nil)

	var fault *WorkerFaultError
	require.ErrorAs(t, err, &fault)
	require.ErrorIs(t, err, boom)
	require.Equal(t, res.RunID, fault.RunID)
	require.Equal(t, Failed, res.Outcome)
	require.Equal(t, int64(3), res.Current)
	require.True(t, renderer.Closed())
	require.Equal(t, Idle, eng.State())

	res, err = eng.Start(context.Background(), "again", "", 1, func(context.Context, any, Reporter) error {
		return nil
	}, nil)
	require.NoError(t, err)
	require.Equal(t, Completed, res.Outcome)
}

// TestStartWhileRunningFailsFast ensures a second Start is rejected without disturbing the first.
func TestStartWhileRunningFailsFast(t *testing.T) {
	t.Parallel()

	eng, _, _ := newTestEngine(nil)
	var nestedErr error
	res, err := eng.Start(context.Background(), "outer", "", 5, func(_ context.Context, _ any, r Reporter) error {
		_, nestedErr = eng.Start(context.Background(), "inner", "", 5, func(context.Context, any, Reporter) error {
			return nil
		}, nil)
		r.ReportIncrement("still going")
		return nil
	}, nil)
	require.NoError(t, err)
	require.ErrorIs(t, nestedErr, ErrConcurrentRun)
	var concurrent *ConcurrentRunError
	require.ErrorAs(t, nestedErr, &concurrent)
	require.Equal(t, res.RunID, concurrent.ActiveRunID)
	require.Contains(t, nestedErr.Error(), res.RunID.String())
	require.Equal(t, Completed, res.Outcome)
	require.Equal(t, int64(1), res.Current)
}

// TestStartRendersInitialFrame checks the first frame is drawn before any report.
func TestStartRendersInitialFrame(t *testing.T) {
	t.Parallel()

	eng, renderer, _ := newTestEngine(nil)
	var framesAtStart []Snapshot
	_, err := eng.Start(context.Background(), "Indexing", "warming up", 0, func(context.Context, any, Reporter) error {
		framesAtStart = renderer.Frames()
		return nil
	}, "arg")
	require.NoError(t, err)
	require.Len(t, framesAtStart, 1)
	first := framesAtStart[0]
	require.Equal(t, "Indexing", first.Title)
	require.Equal(t, "warming up", first.Action)
	require.Equal(t, int64(0), first.Current)
	require.Equal(t, int64(1), first.Total)
	require.Empty(t, first.Counts, "counts hidden while total <= 1")
	require.Empty(t, first.ETA)
}

// TestWorkArgumentIsPassedThrough checks the opaque argument reaches the worker.
func TestWorkArgumentIsPassedThrough(t *testing.T) {
	t.Parallel()

	eng, _, _ := newTestEngine(nil)
	type payload struct{ files []string }
	in := &payload{files: []string{"a", "b"}}
	var got any
	_, err := eng.Start(context.Background(), "t", "", 2, func(_ context.Context, arg any, _ Reporter) error {
		got = arg
		return nil
	}, in)
	require.NoError(t, err)
	require.Same(t, in, got)
}

// TestRenderSnapshotContent checks the counts, fraction and ETA labels.
func TestRenderSnapshotContent(t *testing.T) {
	t.Parallel()

	prefs := Preferences{
		DisplayCounts:            true,
		DisplayTimeEstimates:     true,
		TimeEstimateInitialDelay: 2 * time.Second,
	}
	eng, renderer, clock := newTestEngine(&prefs)
	_, err := eng.Start(context.Background(), "Uploading", "", 20, func(_ context.Context, _ any, r Reporter) error {
		clock.Advance(time.Second)
		r.ReportSpecific("early", WithCount(1))
		clock.Advance(9 * time.Second)
		r.ReportSpecific("file-5", WithCount(5))
		return nil
	}, nil)
	require.NoError(t, err)

	frames := renderer.Frames()
	require.Len(t, frames, 3)

	early := frames[1]
	require.Equal(t, "1 / 20", early.Counts)
	require.Empty(t, early.ETA, "ETA hidden during the initial delay")

	last := frames[2]
	require.Equal(t, "Uploading", last.Title)
	require.Equal(t, "file-5", last.Action)
	require.Equal(t, "5 / 20", last.Counts)
	require.InDelta(t, 0.25, last.Fraction, 1e-9)
	require.Equal(t, 2500, last.Scaled)
	require.Equal(t, "Approx. 30 seconds remaining.", last.ETA)
}

// TestRenderThrottle verifies reports inside the interval do not render.
func TestRenderThrottle(t *testing.T) {
	t.Parallel()

	prefs := DefaultPreferences()
	eng, renderer, clock := newTestEngine(&prefs)
	_, err := eng.Start(context.Background(), "t", "", 100, func(_ context.Context, _ any, r Reporter) error {
		for i := 0; i < 20; i++ {
			clock.Advance(100 * time.Millisecond)
			r.ReportIncrement("")
		}
		return nil
	}, nil)
	require.NoError(t, err)

	// Initial frame at t=0, then one frame each time more than 500ms has
	// passed since the last: t=600ms, 1.2s and 1.8s.
	frames := renderer.Frames()
	require.Len(t, frames, 4)
	require.Equal(t, int64(6), frames[1].Current)
	require.Equal(t, int64(12), frames[2].Current)
	require.Equal(t, int64(18), frames[3].Current)
}

// TestPreferencesApplyAtNextReport toggles labels while the worker is running.
func TestPreferencesApplyAtNextReport(t *testing.T) {
	t.Parallel()

	prefs := Preferences{DisplayCounts: true}
	eng, renderer, clock := newTestEngine(&prefs)
	_, err := eng.Start(context.Background(), "before", "", 10, func(_ context.Context, _ any, r Reporter) error {
		clock.Advance(time.Second)
		r.ReportIncrement("")
		eng.SetDisplayCounts(false)
		eng.SetTitle("after")
		clock.Advance(time.Second)
		r.ReportIncrement("")
		eng.SetDisplayInterval(time.Hour)
		clock.Advance(time.Second)
		r.ReportIncrement("")
		return nil
	}, nil)
	require.NoError(t, err)

	frames := renderer.Frames()
	require.Len(t, frames, 3)
	require.Equal(t, "1 / 10", frames[1].Counts)
	require.Equal(t, "before", frames[1].Title)
	require.Empty(t, frames[2].Counts)
	require.Equal(t, "after", frames[2].Title)
}

// TestAcknowledgedCancelBeatsWorkerError ensures cancellation wins the race with a failing exit path.
func TestAcknowledgedCancelBeatsWorkerError(t *testing.T) {
	t.Parallel()

	eng, _, _ := newTestEngine(nil)
	res, err := eng.Start(context.Background(), "t", "", 10, func(_ context.Context, _ any, r Reporter) error {
		eng.RequestCancel()
		if !r.ReportIncrement("") {
			return errors.New("rollback failed")
		}
		return nil
	}, nil)
	require.NoError(t, err)
	require.Equal(t, Cancelled, res.Outcome)
}

// TestUnacknowledgedCancelWithContextError treats a ctx-aware exit as a cancel.
func TestUnacknowledgedCancelWithContextError(t *testing.T) {
	t.Parallel()

	eng, _, _ := newTestEngine(nil)
	res, err := eng.Start(context.Background(), "t", "", 10, func(ctx context.Context, _ any, _ Reporter) error {
		eng.RequestCancel()
		<-ctx.Done()
		return ctx.Err()
	}, nil)
	require.NoError(t, err)
	require.Equal(t, Cancelled, res.Outcome)
}

// TestParentContextCancelsRun maps caller cancellation onto the cancel handshake.
func TestParentContextCancelsRun(t *testing.T) {
	t.Parallel()

	eng, _, _ := newTestEngine(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	res, err := eng.Start(ctx, "t", "", 10, func(_ context.Context, _ any, r Reporter) error {
		cancel()
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if !r.ReportIncrement("") {
				return nil
			}
			time.Sleep(time.Millisecond)
		}
		return errors.New("cancel never observed")
	}, nil)
	require.NoError(t, err)
	require.Equal(t, Cancelled, res.Outcome)
}

// TestRendererCancelAffordance wires the surface's cancel callback to the engine.
func TestRendererCancelAffordance(t *testing.T) {
	t.Parallel()

	eng, renderer, clock := newTestEngine(&Preferences{})
	renderer.onRender = func(s Snapshot, cancel func()) {
		if s.Current == 3 {
			cancel()
		}
	}
	reports := 0
	res, err := eng.Start(context.Background(), "t", "", 100, func(_ context.Context, _ any, r Reporter) error {
		for {
			clock.Advance(time.Millisecond)
			if !r.ReportIncrement("") {
				return nil
			}
			reports++
		}
	}, nil)
	require.NoError(t, err)
	require.Equal(t, Cancelled, res.Outcome)
	require.Equal(t, 3, reports)
	require.Equal(t, int64(3), res.Current)
}

// TestWorkerPanicBecomesFault recovers panics, including report precondition violations.
func TestWorkerPanicBecomesFault(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		work WorkFunc
	}{
		{name: "explicit panic", work: func(context.Context, any, Reporter) error {
			panic("kaboom")
		}},
		{name: "negative count", work: func(_ context.Context, _ any, r Reporter) error {
			r.ReportSpecific("", WithCount(-1))
			return nil
		}},
		{name: "negative total", work: func(_ context.Context, _ any, r Reporter) error {
			r.ReportSpecific("", WithTotal(-3))
			return nil
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			eng, renderer, _ := newTestEngine(nil)
			res, err := eng.Start(context.Background(), "t", "", 3, tt.work, nil)
			var fault *WorkerFaultError
			require.ErrorAs(t, err, &fault)
			var p *PanicError
			require.ErrorAs(t, err, &p)
			require.NotEmpty(t, p.Stack)
			require.Equal(t, Failed, res.Outcome)
			require.True(t, renderer.Closed())
			require.Equal(t, Idle, eng.State())
		})
	}
}

// TestRendererPanicMidRunLeavesEngineReusable fails the run when a frame
// panics and lets the next Start render normally.
func TestRendererPanicMidRunLeavesEngineReusable(t *testing.T) {
	t.Parallel()

	eng, renderer, clock := newTestEngine(nil)
	var frames int
	renderer.onRender = func(Snapshot, func()) {
		frames++
		if frames == 2 {
			panic("surface blew up")
		}
	}
	res, err := eng.Start(context.Background(), "first", "", 5, func(_ context.Context, _ any, r Reporter) error {
		clock.Advance(time.Second)
		r.ReportIncrement("step")
		return nil
	}, nil)
	var p *PanicError
	require.ErrorAs(t, err, &p)
	require.Equal(t, "surface blew up", p.Value)
	require.Equal(t, Failed, res.Outcome)
	require.True(t, renderer.Closed())

	renderer.mu.Lock()
	renderer.onRender = nil
	renderer.mu.Unlock()

	done := make(chan Result, 1)
	go func() {
		res, _ := eng.Start(context.Background(), "second", "", 2, func(_ context.Context, _ any, r Reporter) error {
			clock.Advance(time.Second)
			r.ReportIncrement("step")
			return nil
		}, nil)
		done <- res
	}()
	select {
	case res := <-done:
		require.Equal(t, Completed, res.Outcome)
	case <-time.After(5 * time.Second):
		t.Fatal("second Start blocked after a render panic")
	}
}

// TestRendererPanicOnFirstFrameClosesSurface tears the run down before work starts.
func TestRendererPanicOnFirstFrameClosesSurface(t *testing.T) {
	t.Parallel()

	emitter := &recordingEmitter{}
	renderer := &recordingRenderer{onRender: func(Snapshot, func()) { panic("no frame for you") }}
	eng := New(Config{Preferences: &Preferences{}, Renderer: renderer, Clock: newManualClock(), Emitter: emitter})

	called := false
	res, err := eng.Start(context.Background(), "t", "", 3, func(context.Context, any, Reporter) error {
		called = true
		return nil
	}, nil)
	var p *PanicError
	require.ErrorAs(t, err, &p)
	require.False(t, called)
	require.Equal(t, Failed, res.Outcome)
	require.True(t, renderer.Closed())
	require.Equal(t, Idle, eng.State())
	require.Equal(t, uuid.Nil, eng.Status().RunID)

	stages := emitter.Stages()
	require.Equal(t, []progress.Stage{progress.StageRunStart, progress.StageRunFailed}, stages)

	renderer.mu.Lock()
	renderer.onRender = nil
	renderer.mu.Unlock()
	res, err = eng.Start(context.Background(), "t", "", 1, func(context.Context, any, Reporter) error {
		return nil
	}, nil)
	require.NoError(t, err)
	require.Equal(t, Completed, res.Outcome)
}

// TestRendererOpenFailure returns the error and leaves the engine reusable.
func TestRendererOpenFailure(t *testing.T) {
	t.Parallel()

	eng, renderer, _ := newTestEngine(nil)
	renderer.openErr = errors.New("no tty")
	called := false
	_, err := eng.Start(context.Background(), "t", "", 3, func(context.Context, any, Reporter) error {
		called = true
		return nil
	}, nil)
	require.ErrorContains(t, err, "no tty")
	require.False(t, called)
	require.Equal(t, Idle, eng.State())
	require.Equal(t, uuid.Nil, eng.Status().RunID)

	renderer.openErr = nil
	_, err = eng.Start(context.Background(), "t", "", 3, func(context.Context, any, Reporter) error {
		called = true
		return nil
	}, nil)
	require.NoError(t, err)
	require.True(t, called)
}

// TestRendererCloseFailureIsReported surfaces teardown errors on success.
func TestRendererCloseFailureIsReported(t *testing.T) {
	t.Parallel()

	eng, renderer, _ := newTestEngine(nil)
	renderer.closeErr = errors.New("terminal gone")
	res, err := eng.Start(context.Background(), "t", "", 3, func(context.Context, any, Reporter) error {
		return nil
	}, nil)
	require.ErrorContains(t, err, "terminal gone")
	require.Equal(t, Completed, res.Outcome)
}

func TestStartRequiresWork(t *testing.T) {
	t.Parallel()

	eng, _, _ := newTestEngine(nil)
	_, err := eng.Start(context.Background(), "t", "", 1, nil, nil)
	require.Error(t, err)
	require.Equal(t, Idle, eng.State())
}

// TestStaleReporterIsRejected ensures a handle from an old run cannot report into a new one.
func TestStaleReporterIsRejected(t *testing.T) {
	t.Parallel()

	eng, _, _ := newTestEngine(nil)
	var leaked Reporter
	_, err := eng.Start(context.Background(), "first", "", 5, func(_ context.Context, _ any, r Reporter) error {
		leaked = r
		return nil
	}, nil)
	require.NoError(t, err)
	require.False(t, leaked.ReportIncrement("late"))

	var staleResult bool
	var st Status
	_, err = eng.Start(context.Background(), "second", "", 5, func(_ context.Context, _ any, _ Reporter) error {
		staleResult = leaked.ReportIncrement("late")
		st = eng.Status()
		return nil
	}, nil)
	require.NoError(t, err)
	require.False(t, staleResult)
	require.Equal(t, int64(0), st.Current)
}

func TestRequestCancelWhileIdleIsIgnored(t *testing.T) {
	t.Parallel()

	eng, _, _ := newTestEngine(nil)
	eng.RequestCancel()
	res, err := eng.Start(context.Background(), "t", "", 2, func(_ context.Context, _ any, r Reporter) error {
		if !r.ReportIncrement("") {
			return errors.New("stale cancel leaked into run")
		}
		return nil
	}, nil)
	require.NoError(t, err)
	require.Equal(t, Completed, res.Outcome)
}

// TestEnginesRunIndependently runs two engines at once.
func TestEnginesRunIndependently(t *testing.T) {
	t.Parallel()

	a, _, _ := newTestEngine(nil)
	b, _, _ := newTestEngine(nil)
	release := make(chan struct{})
	var wg sync.WaitGroup
	results := make([]Result, 2)
	errs := make([]error, 2)
	for i, eng := range []*Engine{a, b} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = eng.Start(context.Background(), "t", "", 2, func(_ context.Context, _ any, r Reporter) error {
				r.ReportIncrement("")
				<-release
				return nil
			}, nil)
		}()
	}
	require.Eventually(t, func() bool {
		return a.State() == Running && b.State() == Running
	}, time.Second, time.Millisecond)
	close(release)
	wg.Wait()
	for i := range results {
		require.NoError(t, errs[i])
		require.Equal(t, Completed, results[i].Outcome)
	}
}

// TestLifecycleEvents checks the engine emits start, render, expand and terminal events.
func TestLifecycleEvents(t *testing.T) {
	t.Parallel()

	emitter := &recordingEmitter{}
	clock := newManualClock()
	renderer := &recordingRenderer{}
	eng := New(Config{Preferences: &Preferences{}, Renderer: renderer, Clock: clock, Emitter: emitter})

	res, err := eng.Start(context.Background(), "t", "", 2, func(_ context.Context, _ any, r Reporter) error {
		clock.Advance(time.Second)
		r.ReportIncrement("")
		clock.Advance(time.Second)
		r.ReportIncrement("")
		return nil
	}, nil)
	require.NoError(t, err)

	stages := emitter.Stages()
	require.Equal(t, []progress.Stage{
		progress.StageRunStart,
		progress.StageRender,
		progress.StageRender,
		progress.StageExpand,
		progress.StageRender,
		progress.StageRunDone,
	}, stages)
	for _, evt := range emitter.Events() {
		require.Equal(t, res.RunID, evt.RunUUID())
		require.NoError(t, evt.Validate())
	}
}

func TestDefaultPreferences(t *testing.T) {
	t.Parallel()

	eng := New(Config{})
	require.Equal(t, DefaultPreferences(), eng.Preferences())
	eng.SetDisplayInterval(-time.Second)
	require.Equal(t, time.Duration(0), eng.Preferences().DisplayInterval)
	require.Equal(t, "idle", eng.State().String())
}

func newTestEngine(prefs *Preferences) (*Engine, *recordingRenderer, *manualClock) {
	if prefs == nil {
		prefs = &Preferences{}
	}
	renderer := &recordingRenderer{}
	clock := newManualClock()
	eng := New(Config{Preferences: prefs, Renderer: renderer, Clock: clock})
	return eng, renderer, clock
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Unix(1700000000, 0).UTC()}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingRenderer struct {
	mu       sync.Mutex
	frames   []Snapshot
	opened   bool
	closed   bool
	cancel   func()
	openErr  error
	closeErr error
	onRender func(Snapshot, func())
}

func (r *recordingRenderer) Open(cancel func()) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.openErr != nil {
		return r.openErr
	}
	r.opened = true
	r.closed = false
	r.cancel = cancel
	return nil
}

func (r *recordingRenderer) Render(s Snapshot) {
	r.mu.Lock()
	r.frames = append(r.frames, s)
	hook, cancel := r.onRender, r.cancel
	r.mu.Unlock()
	if hook != nil {
		hook(s, cancel)
	}
}

func (r *recordingRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return r.closeErr
}

func (r *recordingRenderer) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *recordingRenderer) Frames() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Snapshot(nil), r.frames...)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (e *recordingEmitter) Emit(evt progress.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func (e *recordingEmitter) Events() []progress.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]progress.Event(nil), e.events...)
}

func (e *recordingEmitter) Stages() []progress.Stage {
	events := e.Events()
	out := make([]progress.Stage, 0, len(events))
	for _, evt := range events {
		out = append(out, evt.Stage)
	}
	return out
}

func TestApplyReportOptions(t *testing.T) {
	t.Parallel()

	v := ApplyReportOptions(nil, WithCount(3))
	n, ok := v.Count()
	require.True(t, ok)
	require.Equal(t, int64(3), n)
	_, ok = v.Total()
	require.False(t, ok)

	v = ApplyReportOptions(WithTotal(9), WithTotal(12))
	n, ok = v.Total()
	require.True(t, ok)
	require.Equal(t, int64(12), n)
}
