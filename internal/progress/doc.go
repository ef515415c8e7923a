// Package progress carries run lifecycle events away from the engine. A Hub
// batches events on a background goroutine and fans them out to pluggable
// sinks (logs, Prometheus, run history, archives, notifications) without ever
// blocking the worker that produced them.
package progress
