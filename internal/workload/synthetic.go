package workload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/modalprogress/internal/engine"
)

// ErrInjectedFailure is returned by Synthetic when FailAfter is reached.
var ErrInjectedFailure = errors.New("synthetic: injected failure")

// Synthetic reports Steps increments with Delay between them.
type Synthetic struct {
	Steps int
	Delay time.Duration
	// FailAfter makes the run fail after that many steps; 0 never fails.
	FailAfter int
	// UnknownTotal starts without an estimate so the total grows as steps land.
	UnknownTotal bool
}

// Estimate is the total to pass to engine.Start.
func (s Synthetic) Estimate() int64 {
	if s.UnknownTotal {
		return 0
	}
	return int64(s.Steps)
}

// Run is an engine.WorkFunc. It stops early, without error, when a report
// returns false.
func (s Synthetic) Run(ctx context.Context, _ any, r engine.Reporter) error {
	for i := 1; i <= s.Steps; i++ {
		if err := sleep(ctx, s.Delay); err != nil {
			return err
		}
		if s.FailAfter > 0 && i > s.FailAfter {
			return fmt.Errorf("step %d: %w", i, ErrInjectedFailure)
		}
		if !r.ReportIncrement(fmt.Sprintf("Step %d of %d", i, s.Steps)) {
			return nil
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
