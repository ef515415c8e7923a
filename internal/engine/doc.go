// Package engine coordinates one long-running unit of work with a foreground
// observer.
//
// Start blocks its caller while the work function runs on its own goroutine.
// The worker reports progress through a Reporter; every report may trigger a
// throttled render of a Snapshot (title, fraction, action, counts and ETA) on
// the configured Renderer. Cancellation is cooperative: RequestCancel sets a
// flag which the worker observes as a false return from its next report.
//
// Display preferences can be changed from any goroutine at any time. They are
// stored in atomics and picked up by the next report; nothing waits for them
// to apply.
//
// An Engine runs at most one unit of work at a time. Separate Engine values
// are independent and may run concurrently.
package engine
