// Package postgres provides a Postgres-backed tracking.Repository.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/fraud-detection/internal/tracking"
)

//go:embed schema.sql
var schemaSQL string

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Store implements tracking.Repository on Postgres.
type Store struct {
	pool pool
}

// NewStore connects, then creates the schema if it is missing.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("tracking.dsn is required")
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
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &Store{pool: p}
	if err := s.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewStoreWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: p}, nil
}

// EnsureSchema creates the tracking tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create tracking schema: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// StartRun implements tracking.Repository.
func (s *Store) StartRun(ctx context.Context, runID uuid.UUID, name string, startedAt time.Time) error {
	query := `
		INSERT INTO runs (id, name, status, started_at)
		VALUES ($1, $2, $3, $4);
	`
	if _, err := s.pool.Exec(ctx, query, runID, name, string(tracking.RunRunning), startedAt); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// LogParams implements tracking.Repository.
func (s *Store) LogParams(ctx context.Context, runID uuid.UUID, params map[string]string) error {
	query := `
		INSERT INTO run_params (run_id, key, value)
		SELECT $1, $2, $3 WHERE EXISTS (SELECT 1 FROM runs WHERE id = $1)
		ON CONFLICT (run_id, key) DO UPDATE SET value = EXCLUDED.value;
	`
	for _, k := range sortedKeys(params) {
		tag, err := s.pool.Exec(ctx, query, runID, k, params[k])
		if err != nil {
			return fmt.Errorf("failed to upsert param %s: %w", k, err)
		}
		if tag.RowsAffected() == 0 {
			return tracking.ErrNotFound
		}
	}
	return nil
}

// LogMetrics implements tracking.Repository.
func (s *Store) LogMetrics(ctx context.Context, runID uuid.UUID, metrics map[string]float64, at time.Time) error {
	query := `
		INSERT INTO run_metrics (run_id, key, value, logged_at)
		SELECT $1, $2, $3, $4 WHERE EXISTS (SELECT 1 FROM runs WHERE id = $1)
		ON CONFLICT (run_id, key) DO UPDATE SET value = EXCLUDED.value, logged_at = EXCLUDED.logged_at;
	`
	keys := make([]string, 0, len(metrics))
	for k := range metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		tag, err := s.pool.Exec(ctx, query, runID, k, metrics[k], at)
		if err != nil {
			return fmt.Errorf("failed to upsert metric %s: %w", k, err)
		}
		if tag.RowsAffected() == 0 {
			return tracking.ErrNotFound
		}
	}
	return nil
}

// CompleteRun implements tracking.Repository.
func (s *Store) CompleteRun(
	ctx context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status tracking.RunStatus,
	errMsg *string,
) error {
	query := `
		UPDATE runs
		SET finished_at = $1, status = $2, error_message = $3
		WHERE id = $4;
	`
	tag, err := s.pool.Exec(ctx, query, finishedAt, string(status), errMsg, runID)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return tracking.ErrNotFound
	}
	return nil
}

// GetRun implements tracking.Repository.
func (s *Store) GetRun(ctx context.Context, runID uuid.UUID) (tracking.Run, error) {
	query := `
		SELECT id, name, started_at, finished_at, status, error_message
		FROM runs
		WHERE id = $1;
	`
	var run tracking.Run
	err := s.pool.QueryRow(ctx, query, runID).Scan(
		&run.ID,
		&run.Name,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Status,
		&run.ErrorMessage,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return tracking.Run{}, tracking.ErrNotFound
		}
		return tracking.Run{}, fmt.Errorf("failed to get run: %w", err)
	}

	rows, err := s.pool.Query(ctx, `SELECT key, value FROM run_params WHERE run_id = $1;`, runID)
	if err != nil {
		return tracking.Run{}, fmt.Errorf("failed to list params: %w", err)
	}
	defer rows.Close()
	run.Params = map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return tracking.Run{}, fmt.Errorf("failed to scan param: %w", err)
		}
		run.Params[k] = v
	}
	if err := rows.Err(); err != nil {
		return tracking.Run{}, fmt.Errorf("failed to iterate params: %w", err)
	}
	return run, nil
}

// ListRuns implements tracking.Repository. Params are not loaded.
func (s *Store) ListRuns(ctx context.Context, status *tracking.RunStatus, limit, offset int) ([]tracking.Run, error) {
	query := `
		SELECT id, name, started_at, finished_at, status, error_message
		FROM runs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC, id DESC
		LIMIT $2 OFFSET $3;
	`
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

	runs := []tracking.Run{}
	for rows.Next() {
		var run tracking.Run
		if err := rows.Scan(
			&run.ID,
			&run.Name,
			&run.StartedAt,
			&run.FinishedAt,
			&run.Status,
			&run.ErrorMessage,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

// ListMetrics implements tracking.Repository.
func (s *Store) ListMetrics(ctx context.Context, runID uuid.UUID) ([]tracking.Metric, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM runs WHERE id = $1);`, runID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check run: %w", err)
	}
	if !exists {
		return nil, tracking.ErrNotFound
	}

	rows, err := s.pool.Query(ctx, `
		SELECT key, value, logged_at
		FROM run_metrics
		WHERE run_id = $1
		ORDER BY key;
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list metrics: %w", err)
	}
	defer rows.Close()

	metrics := []tracking.Metric{}
	for rows.Next() {
		m := tracking.Metric{RunID: runID}
		if err := rows.Scan(&m.Key, &m.Value, &m.LoggedAt); err != nil {
			return nil, fmt.Errorf("failed to scan metric: %w", err)
		}
		metrics = append(metrics, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate metrics: %w", err)
	}
	return metrics, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
