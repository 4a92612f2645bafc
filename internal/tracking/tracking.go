// Package tracking declares the experiment-run repository that records
// training runs together with their parameters and evaluation metrics.
package tracking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested run does not exist.
var ErrNotFound = errors.New("run not found")

// RunStatus mirrors the runs.status column.
type RunStatus string

// Run statuses persisted in runs.status.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// Valid reports whether s is a known status.
func (s RunStatus) Valid() bool {
	switch s {
	case RunRunning, RunSuccess, RunError:
		return true
	}
	return false
}

// Run models one training and evaluation pass.
type Run struct {
	ID uuid.UUID
	// Name is "<model> - <dataset>".
	Name      string
	StartedAt time.Time
	// FinishedAt is nil until the run is marked success/error.
	FinishedAt   *time.Time
	Status       RunStatus
	ErrorMessage *string
	Params       map[string]string
}

// Metric is one named evaluation score for a run.
type Metric struct {
	RunID    uuid.UUID
	Key      string
	Value    float64
	LoggedAt time.Time
}

// Repository persists runs.
type Repository interface {
	// StartRun inserts a running run. Starting an existing ID is an error.
	StartRun(ctx context.Context, runID uuid.UUID, name string, startedAt time.Time) error
	// LogParams upserts string parameters.
	LogParams(ctx context.Context, runID uuid.UUID, params map[string]string) error
	// LogMetrics upserts metric values; the latest value per key wins.
	LogMetrics(ctx context.Context, runID uuid.UUID, metrics map[string]float64, at time.Time) error
	// CompleteRun marks the run finished with the provided status and error.
	CompleteRun(ctx context.Context, runID uuid.UUID, finishedAt time.Time, status RunStatus, errMsg *string) error
	// GetRun loads a single run with its params or returns ErrNotFound.
	GetRun(ctx context.Context, runID uuid.UUID) (Run, error)
	// ListRuns returns runs newest first, filtered by optional status.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]Run, error)
	// ListMetrics returns a run's metrics ordered by key.
	ListMetrics(ctx context.Context, runID uuid.UUID) ([]Metric, error)
	Close() error
}
