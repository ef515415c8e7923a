// Package main hosts the progressrun command.
//
// Architecture overview:
//   - Engine: internal/engine runs one work function at a time on a background goroutine and blocks the caller
//     until it returns. The worker reports through a Reporter whose return value carries the cancel signal.
//   - Render surface: internal/render/tui draws an interactive bar with a cancel key (q, esc or ctrl+c);
//     internal/render/text writes one line per frame for pipes and CI.
//   - Fan-out: every run lifecycle and render event is emitted to the progress Hub, which batches them for the log,
//     Prometheus, run-history, archive and Pub/Sub sinks. Emit never blocks the worker.
//   - Observer API: when server.enabled is set, internal/api serves /healthz, /readyz, /metrics, the current run
//     (/v1/run), remote cancel (/v1/run/cancel) and run history (/v1/runs) for the duration of the run.
//   - Configuration & plumbing: Viper populates config from env/files and watches the file for display changes;
//     zap provides structured logging.
//
// Quick checklist:
//   - Configure env vars: PROGRESS_RENDER_MODE, PROGRESS_DISPLAY_COUNTS, PROGRESS_SERVER_ENABLED,
//     PROGRESS_SERVER_PORT, PROGRESS_STORE_DRIVER (memory, sqlite, postgres) and PROGRESS_ARCHIVE_DRIVER.
//   - Run locally: go run ./cmd/progressrun run synthetic --steps 50 --delay 100ms
//   - Fetch pages: go run ./cmd/progressrun run fetch https://example.com
//   - SIGINT and SIGTERM cancel the active run; the process exits 130 after a cancelled run.
package main
