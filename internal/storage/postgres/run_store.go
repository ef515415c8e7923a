// Package postgres provides a Postgres-backed run history store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/modalprogress/internal/store"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for run rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxConn interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// RunStore implements store.RunRepository using Postgres.
type RunStore struct {
	pool  pgxConn
	table string
}

var _ store.RunRepository = (*RunStore)(nil)

// NewRunStore connects a pool using cfg.
func NewRunStore(ctx context.Context, cfg Config) (*RunStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewRunStoreWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewRunStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRunStoreWithPool(pool pgxConn, table string) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "runs"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &RunStore{pool: pool, table: table}, nil
}

// Close closes the underlying connection pool.
func (s *RunStore) Close() {
	s.pool.Close()
}

// EnsureSchema creates the runs table and its index when missing.
func (s *RunStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ,
			last_action TEXT NOT NULL DEFAULT '',
			current_count BIGINT NOT NULL DEFAULT 0,
			total_count BIGINT NOT NULL DEFAULT 1,
			error_message TEXT
		)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_started_at_idx ON %s (started_at DESC)`, s.table, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// UpsertRunStart inserts the run as running, refreshing the title on replay.
func (s *RunStore) UpsertRunStart(ctx context.Context, runID uuid.UUID, title string, total int64, startedAt time.Time) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, title, status, started_at, updated_at, total_count)
		VALUES ($1, $2, $3, $4, $4, $5)
		ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title;
	`, s.table)
	if _, err := s.pool.Exec(ctx, query, runID, title, string(store.RunRunning), startedAt, total); err != nil {
		return fmt.Errorf("failed to upsert run start: %w", err)
	}
	return nil
}

// RecordProgress updates counts for a running run. Finished or unknown runs
// match no rows and are left alone.
func (s *RunStore) RecordProgress(ctx context.Context, runID uuid.UUID, p store.Progress) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET last_action = CASE WHEN $1 = '' THEN last_action ELSE $1 END,
			current_count = $2, total_count = $3, updated_at = $4
		WHERE id = $5 AND status = $6;
	`, s.table)
	_, err := s.pool.Exec(ctx, query, p.Action, p.Current, p.Total, p.At, runID, string(store.RunRunning))
	if err != nil {
		return fmt.Errorf("failed to record progress: %w", err)
	}
	return nil
}

// CompleteRun writes the terminal status, inserting the row if the start was
// never recorded.
func (s *RunStore) CompleteRun(
	ctx context.Context,
	runID uuid.UUID,
	status store.RunStatus,
	final store.Progress,
	errMsg *string,
) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, status, started_at, updated_at, finished_at, last_action, current_count, total_count, error_message)
		VALUES ($1, $2, $3, $3, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at,
			finished_at = EXCLUDED.finished_at,
			last_action = CASE WHEN EXCLUDED.last_action = '' THEN %s.last_action ELSE EXCLUDED.last_action END,
			current_count = EXCLUDED.current_count,
			total_count = EXCLUDED.total_count,
			error_message = EXCLUDED.error_message;
	`, s.table, s.table)
	_, err := s.pool.Exec(ctx, query, runID, string(status), final.At, final.Action, final.Current, final.Total, errMsg)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	return nil
}

// GetRun retrieves a single run by its ID.
func (s *RunStore) GetRun(ctx context.Context, runID uuid.UUID) (store.Run, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1;`, runColumns, s.table)
	run, err := scanRun(s.pool.QueryRow(ctx, query, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves runs newest first, with optional status filtering.
func (s *RunStore) ListRuns(ctx context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;
	`, runColumns, s.table)
	var filter *string
	if status != nil {
		v := string(*status)
		filter = &v
	}
	rows, err := s.pool.Query(ctx, query, filter, limit, offset)
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

func scanRun(row pgx.Row) (store.Run, error) {
	var (
		run    store.Run
		status string
	)
	err := row.Scan(
		&run.ID,
		&run.Title,
		&status,
		&run.StartedAt,
		&run.UpdatedAt,
		&run.FinishedAt,
		&run.LastAction,
		&run.Current,
		&run.Total,
		&run.ErrorMessage,
	)
	if err != nil {
		return store.Run{}, err
	}
	run.Status = store.RunStatus(status)
	return run, nil
}
