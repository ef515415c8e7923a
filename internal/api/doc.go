// Package api hosts the observer HTTP server for a running engine. Notable
// routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/run for the live status of the current run.
//   - POST /v1/run/cancel to request cancellation remotely.
//   - GET /v1/runs and /v1/runs/{run_id} for run history via the
//     RunRepository interface.
package api
