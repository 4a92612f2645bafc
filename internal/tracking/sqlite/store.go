// Package sqlite provides a SQLite-backed tracking.Repository for local
// experiment runs.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/fraud-detection/internal/tracking"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Store persists runs in a SQLite file.
type Store struct {
	sqlDB *sql.DB
}

// Open opens the database at path and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Harness runs write concurrently; a single connection serializes them.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

func applyMigrations(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (name TEXT PRIMARY KEY, applied_at INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		var n int
		if err := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE name = ?`, name).Scan(&n); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if n > 0 {
			continue
		}
		content, err := fs.ReadFile(migrationFS, "migrations/"+name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", name, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)`, name, time.Now().UTC().Unix()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}
	}
	return nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// StartRun implements tracking.Repository.
func (s *Store) StartRun(ctx context.Context, runID uuid.UUID, name string, startedAt time.Time) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO runs (id, name, status, started_at) VALUES (?, ?, ?, ?)`,
		runID.String(), name, string(tracking.RunRunning), startedAt.UTC().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// LogParams implements tracking.Repository.
func (s *Store) LogParams(ctx context.Context, runID uuid.UUID, params map[string]string) error {
	return s.inTx(ctx, runID, func(tx *sql.Tx) error {
		for k, v := range params {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO run_params (run_id, key, value) VALUES (?, ?, ?)
ON CONFLICT (run_id, key) DO UPDATE SET value = excluded.value`,
				runID.String(), k, v,
			); err != nil {
				return fmt.Errorf("upsert param %s: %w", k, err)
			}
		}
		return nil
	})
}

// LogMetrics implements tracking.Repository.
func (s *Store) LogMetrics(ctx context.Context, runID uuid.UUID, metrics map[string]float64, at time.Time) error {
	return s.inTx(ctx, runID, func(tx *sql.Tx) error {
		for k, v := range metrics {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO run_metrics (run_id, key, value, logged_at) VALUES (?, ?, ?, ?)
ON CONFLICT (run_id, key) DO UPDATE SET value = excluded.value, logged_at = excluded.logged_at`,
				runID.String(), k, v, at.UTC().UnixNano(),
			); err != nil {
				return fmt.Errorf("upsert metric %s: %w", k, err)
			}
		}
		return nil
	})
}

func (s *Store) inTx(ctx context.Context, runID uuid.UUID, fn func(*sql.Tx) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE id = ?`, runID.String()).Scan(&exists); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("check run: %w", err)
	}
	if exists == 0 {
		_ = tx.Rollback()
		return tracking.ErrNotFound
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// CompleteRun implements tracking.Repository.
func (s *Store) CompleteRun(ctx context.Context, runID uuid.UUID, finishedAt time.Time, status tracking.RunStatus, errMsg *string) error {
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, status = ?, error_message = ? WHERE id = ?`,
		finishedAt.UTC().UnixNano(), string(status), errMsg, runID.String(),
	)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	if n == 0 {
		return tracking.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (tracking.Run, error) {
	var (
		run      tracking.Run
		id       string
		status   string
		started  int64
		finished sql.NullInt64
		errMsg   sql.NullString
	)
	if err := row.Scan(&id, &run.Name, &status, &started, &finished, &errMsg); err != nil {
		return tracking.Run{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return tracking.Run{}, fmt.Errorf("parse run id %q: %w", id, err)
	}
	run.ID = parsed
	run.Status = tracking.RunStatus(status)
	run.StartedAt = time.Unix(0, started).UTC()
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

// GetRun implements tracking.Repository.
func (s *Store) GetRun(ctx context.Context, runID uuid.UUID) (tracking.Run, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, name, status, started_at, finished_at, error_message FROM runs WHERE id = ?`,
		runID.String(),
	)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tracking.Run{}, tracking.ErrNotFound
		}
		return tracking.Run{}, fmt.Errorf("get run: %w", err)
	}
	params, err := s.params(ctx, runID)
	if err != nil {
		return tracking.Run{}, err
	}
	run.Params = params
	return run, nil
}

func (s *Store) params(ctx context.Context, runID uuid.UUID) (map[string]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT key, value FROM run_params WHERE run_id = ?`, runID.String())
	if err != nil {
		return nil, fmt.Errorf("list params: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	params := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan param: %w", err)
		}
		params[k] = v
	}
	return params, rows.Err()
}

// ListRuns implements tracking.Repository. Params are not loaded.
func (s *Store) ListRuns(ctx context.Context, status *tracking.RunStatus, limit, offset int) ([]tracking.Run, error) {
	var filter any
	if status != nil {
		filter = string(*status)
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, name, status, started_at, finished_at, error_message
FROM runs
WHERE (? IS NULL OR status = ?)
ORDER BY started_at DESC, id DESC
LIMIT ? OFFSET ?`,
		filter, filter, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	runs := []tracking.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListMetrics implements tracking.Repository.
func (s *Store) ListMetrics(ctx context.Context, runID uuid.UUID) ([]tracking.Metric, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT key, value, logged_at FROM run_metrics WHERE run_id = ? ORDER BY key`,
		runID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	metrics := []tracking.Metric{}
	for rows.Next() {
		m := tracking.Metric{RunID: runID}
		var at int64
		if err := rows.Scan(&m.Key, &m.Value, &at); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		m.LoggedAt = time.Unix(0, at).UTC()
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}
