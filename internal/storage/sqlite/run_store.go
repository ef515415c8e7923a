// Package sqlite provides a single-file run history store on the pure-Go
// modernc SQLite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/modalprogress/internal/store"
)

// RunStore implements store.RunRepository on a SQLite file.
type RunStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.RunRepository = (*RunStore)(nil)

// Open opens (or creates) the database at path and applies migrations. Use
// ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*RunStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serialises writers; one connection also keeps :memory: alive.
	db.SetMaxOpenConns(1)
	s := &RunStore{db: db, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *RunStore) Close() error {
	return s.db.Close()
}

// UpsertRunStart inserts the run as running, refreshing the title on replay.
func (s *RunStore) UpsertRunStart(ctx context.Context, runID uuid.UUID, title string, total int64, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, title, status, started_at, updated_at, total_count)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET title = excluded.title
	`, runID.String(), title, string(store.RunRunning), startedAt.UnixNano(), startedAt.UnixNano(), total)
	if err != nil {
		return fmt.Errorf("failed to upsert run start: %w", err)
	}
	return nil
}

// RecordProgress updates counts for a running run.
func (s *RunStore) RecordProgress(ctx context.Context, runID uuid.UUID, p store.Progress) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET last_action = CASE WHEN ? = '' THEN last_action ELSE ? END,
			current_count = ?, total_count = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, p.Action, p.Action, p.Current, p.Total, p.At.UnixNano(), runID.String(), string(store.RunRunning))
	if err != nil {
		return fmt.Errorf("failed to record progress: %w", err)
	}
	return nil
}

// CompleteRun writes the terminal status, inserting the row if needed.
func (s *RunStore) CompleteRun(
	ctx context.Context,
	runID uuid.UUID,
	status store.RunStatus,
	final store.Progress,
	errMsg *string,
) error {
	at := final.At.UnixNano()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, status, started_at, updated_at, finished_at, last_action, current_count, total_count, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			updated_at = excluded.updated_at,
			finished_at = excluded.finished_at,
			last_action = CASE WHEN excluded.last_action = '' THEN runs.last_action ELSE excluded.last_action END,
			current_count = excluded.current_count,
			total_count = excluded.total_count,
			error_message = excluded.error_message
	`, runID.String(), string(status), at, at, at, final.Action, final.Current, final.Total, errMsg)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	return nil
}

// GetRun retrieves a single run by its ID.
func (s *RunStore) GetRun(ctx context.Context, runID uuid.UUID) (store.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID.String())
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves runs newest first, with optional status filtering. A
// non-positive limit returns every row.
func (s *RunStore) ListRuns(ctx context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	var filter any
	if status != nil {
		filter = string(*status)
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM runs
		WHERE (? IS NULL OR status = ?)
		ORDER BY started_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, filter, filter, limit, max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []store.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

const runColumns = `id, title, status, started_at, updated_at, finished_at, last_action, current_count, total_count, error_message`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (store.Run, error) {
	var (
		run              store.Run
		id, status       string
		started, updated int64
		finished         sql.NullInt64
		errMsg           sql.NullString
	)
	if err := row.Scan(
		&id, &run.Title, &status, &started, &updated, &finished,
		&run.LastAction, &run.Current, &run.Total, &errMsg,
	); err != nil {
		return store.Run{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return store.Run{}, fmt.Errorf("parse run id %q: %w", id, err)
	}
	run.ID = parsed
	run.Status = store.RunStatus(status)
	run.StartedAt = time.Unix(0, started).UTC()
	run.UpdatedAt = time.Unix(0, updated).UTC()
	if finished.Valid {
		t := time.Unix(0, finished.Int64).UTC()
		run.FinishedAt = &t
	}
	if errMsg.Valid {
		msg := errMsg.String
		run.ErrorMessage = &msg
	}
	return run, nil
}
