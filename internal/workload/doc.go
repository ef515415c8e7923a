// Package workload provides work functions that run under the engine: a
// synthetic stepper for demos and tests, and a colly-based page fetcher.
package workload
