// Package eta estimates time remaining from average throughput since start.
//
// The estimate is a straight linear extrapolation with no smoothing.
package eta

import "time"

// Estimator holds the policy knobs that gate whether an estimate is shown.
type Estimator struct {
	// Enabled turns estimates on or off entirely.
	Enabled bool
	// InitialDelay suppresses estimates until elapsed exceeds it.
	InitialDelay time.Duration
}

// Estimate returns the remaining duration and true, or false when no
// estimate should be shown. Estimates require Enabled, total > 1,
// elapsed > InitialDelay and current > 0.
func (e Estimator) Estimate(elapsed time.Duration, current, total int64) (time.Duration, bool) {
	if !e.Enabled || total <= 1 || elapsed <= e.InitialDelay || current <= 0 {
		return 0, false
	}
	rate := float64(current) / elapsed.Seconds()
	remaining := float64(total-current) / rate
	return time.Duration(remaining * float64(time.Second)), true
}
