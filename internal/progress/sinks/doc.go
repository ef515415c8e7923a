// Package sinks implements concrete run event consumers: structured logging,
// Prometheus, run history storage, blob archival and message publishing. Each
// sink satisfies the progress.Sink interface.
package sinks
