package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/modalprogress/internal/progress"
)

// PrometheusSink exports run metrics via Prometheus. It owns all collectors
// for runs started/finished/running plus render and expansion counters.
type PrometheusSink struct {
	runsStarted    prometheus.Counter
	runsFinished   *prometheus.CounterVec
	runsRunning    prometheus.Gauge
	runRuntime     *prometheus.HistogramVec
	renders        prometheus.Counter
	expansions     prometheus.Counter
	cancelRequests prometheus.Counter
	lastFraction   prometheus.Gauge

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "progress_runs_started_total",
			Help: "Total runs that have started.",
		}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "progress_runs_finished_total",
			Help: "Total runs finished partitioned by outcome.",
		}, []string{"outcome"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "progress_runs_running",
			Help: "Current number of running runs.",
		}),
		runRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "progress_run_runtime_seconds",
			Help:    "Wall time per finished run.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 1200},
		}, []string{"outcome"}),
		renders: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "progress_renders_total",
			Help: "Frames drawn on render surfaces.",
		}),
		expansions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "progress_total_expansions_total",
			Help: "Times an increment pushed the total estimate up.",
		}),
		cancelRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "progress_cancel_requests_total",
			Help: "Cancellation requests received for running runs.",
		}),
		lastFraction: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "progress_last_rendered_fraction",
			Help: "Completed fraction of the most recently rendered frame.",
		}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsFinished,
		s.runsRunning,
		s.runRuntime,
		s.renders,
		s.expansions,
		s.cancelRequests,
		s.lastFraction,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		if s.tracker.start(evt.RunID) {
			s.runsRunning.Inc()
		}
	case progress.StageRender:
		s.renders.Inc()
		if evt.Total > 0 {
			s.lastFraction.Set(min(float64(evt.Current)/float64(evt.Total), 1))
		}
	case progress.StageExpand:
		s.expansions.Inc()
	case progress.StageCancelRequested:
		s.cancelRequests.Inc()
	case progress.StageRunDone, progress.StageRunCancelled, progress.StageRunFailed:
		label := outcomeLabel(evt.Stage)
		s.runsFinished.WithLabelValues(label).Inc()
		if evt.Elapsed > 0 {
			s.runRuntime.WithLabelValues(label).Observe(evt.Elapsed.Seconds())
		}
		if s.tracker.complete(evt.RunID) {
			s.runsRunning.Dec()
		}
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

func outcomeLabel(stage progress.Stage) string {
	switch stage {
	case progress.StageRunCancelled:
		return "cancelled"
	case progress.StageRunFailed:
		return "failed"
	default:
		return "completed"
	}
}

type runTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[[16]byte]struct{})}
}

func (t *runTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
