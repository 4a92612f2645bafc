// Package postgres persists audited predictions to Postgres.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/fraud-detection/internal/audit"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "predictions"

// Config controls the Postgres connection pool used for prediction rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// PredictionStore writes prediction rows into Postgres.
type PredictionStore struct {
	pool        execCloser
	table       string
	rowsPerStmt int
}

// NewPredictionStore connects and creates the table if it is missing.
func NewPredictionStore(ctx context.Context, cfg Config) (*PredictionStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("audit.dsn is required")
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
	s, err := NewPredictionStoreWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPredictionStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewPredictionStoreWithPool(pool execCloser, table string) (*PredictionStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PredictionStore{pool: pool, table: table, rowsPerStmt: maxRowsPerStmt}, nil
}

// Close releases the underlying pool resources.
func (s *PredictionStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the predictions table.
func (s *PredictionStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id            UUID PRIMARY KEY,
	predicted_at  TIMESTAMPTZ NOT NULL,
	label         TEXT NOT NULL,
	is_fraud      BOOLEAN NOT NULL,
	probability   DOUBLE PRECISION NOT NULL,
	model_version TEXT NOT NULL,
	latency_us    BIGINT NOT NULL,
	client        TEXT NOT NULL DEFAULT ''
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s table: %w", s.table, err)
	}
	return nil
}

const predictionColumns = 8

// maxRowsPerStmt keeps each insert under the 65535 bind parameter cap.
const maxRowsPerStmt = 65535 / predictionColumns

// InsertPredictions writes the batch with multi-row inserts, splitting it
// so no statement exceeds the bind parameter limit. Replayed IDs are ignored.
func (s *PredictionStore) InsertPredictions(ctx context.Context, events []audit.Event) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("prediction store is not configured")
	}
	for start := 0; start < len(events); start += s.rowsPerStmt {
		end := min(start+s.rowsPerStmt, len(events))
		if err := s.insertChunk(ctx, events[start:end]); err != nil {
			return fmt.Errorf("insert predictions %d-%d of %d: %w", start, end, len(events), err)
		}
	}
	return nil
}

func (s *PredictionStore) insertChunk(ctx context.Context, events []audit.Event) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (id, predicted_at, label, is_fraud, probability, model_version, latency_us, client) VALUES ", s.table)
	args := make([]any, 0, len(events)*predictionColumns)
	for i, evt := range events {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * predictionColumns
		sb.WriteString("(")
		for c := 1; c <= predictionColumns; c++ {
			if c > 1 {
				sb.WriteString(",")
			}
			fmt.Fprintf(&sb, "$%d", base+c)
		}
		sb.WriteString(")")
		args = append(args,
			evt.PredictionID,
			evt.TS,
			evt.Label,
			evt.Fraud,
			evt.Probability,
			evt.ModelVersion,
			evt.Latency.Microseconds(),
			evt.Client,
		)
	}
	sb.WriteString(" ON CONFLICT (id) DO NOTHING")
	_, err := s.pool.Exec(ctx, sb.String(), args...)
	return err
}
