// Package throttle decides whether a progress render is due. It holds no
// state; callers own the last-render timestamp and update it after rendering.
package throttle

import "time"

// ShouldRender reports whether a render should happen at now. A nil last
// means nothing has been rendered yet, which always renders. Otherwise the
// time since last must strictly exceed minInterval.
func ShouldRender(now time.Time, last *time.Time, minInterval time.Duration) bool {
	if last == nil {
		return true
	}
	return now.Sub(*last) > minInterval
}
