package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/fraud-detection/internal/tracking"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewStoreWithPool(mock)
	require.NoError(t, err)
	return store, mock
}

func TestNewStoreWithPoolRequiresPool(t *testing.T) {
	t.Parallel()

	_, err := NewStoreWithPool(nil)
	assert.Error(t, err)
}

func TestStartAndCompleteRun(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	runID := uuid.New()
	start := time.Unix(1700000000, 0).UTC()
	finish := start.Add(time.Minute)
	msg := "fit failed"

	mock.ExpectExec("INSERT INTO runs").
		WithArgs(runID, "logistic_regression - Fraud_Data", "running", start).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE runs").
		WithArgs(finish, "error", &msg, runID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ctx := context.Background()
	require.NoError(t, store.StartRun(ctx, runID, "logistic_regression - Fraud_Data", start))
	require.NoError(t, store.CompleteRun(ctx, runID, finish, tracking.RunError, &msg))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteRunMissing(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	runID := uuid.New()
	finish := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec("UPDATE runs").
		WithArgs(finish, "success", (*string)(nil), runID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.CompleteRun(context.Background(), runID, finish, tracking.RunSuccess, nil)
	assert.True(t, errors.Is(err, tracking.ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLogParamsAndMetricsSorted(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	runID := uuid.New()
	at := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec("INSERT INTO run_params").
		WithArgs(runID, "dataset", "Fraud_Data").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO run_params").
		WithArgs(runID, "model", "majority").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO run_metrics").
		WithArgs(runID, "accuracy", 0.9, at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO run_metrics").
		WithArgs(runID, "f1_score", 0.0, at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	ctx := context.Background()
	require.NoError(t, store.LogParams(ctx, runID, map[string]string{"model": "majority", "dataset": "Fraud_Data"}))
	require.NoError(t, store.LogMetrics(ctx, runID, map[string]float64{"f1_score": 0, "accuracy": 0.9}, at))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLogParamsMissingRun(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	runID := uuid.New()
	mock.ExpectExec("INSERT INTO run_params").
		WithArgs(runID, "model", "majority").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	err := store.LogParams(context.Background(), runID, map[string]string{"model": "majority"})
	assert.True(t, errors.Is(err, tracking.ErrNotFound))
}

func TestGetRun(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	runID := uuid.New()
	start := time.Unix(1700000000, 0).UTC()
	finish := start.Add(time.Minute)

	mock.ExpectQuery("SELECT id, name, started_at").
		WithArgs(runID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "started_at", "finished_at", "status", "error_message"}).
			AddRow(runID, "majority - Fraud_Data", start, &finish, tracking.RunSuccess, (*string)(nil)))
	mock.ExpectQuery("SELECT key, value FROM run_params").
		WithArgs(runID).
		WillReturnRows(pgxmock.NewRows([]string{"key", "value"}).AddRow("model", "majority"))

	run, err := store.GetRun(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, runID, run.ID)
	assert.Equal(t, tracking.RunSuccess, run.Status)
	require.NotNil(t, run.FinishedAt)
	assert.Equal(t, finish, *run.FinishedAt)
	assert.Equal(t, map[string]string{"model": "majority"}, run.Params)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRunNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	runID := uuid.New()
	mock.ExpectQuery("SELECT id, name, started_at").
		WithArgs(runID).
		WillReturnError(pgx.ErrNoRows)

	_, err := store.GetRun(context.Background(), runID)
	assert.True(t, errors.Is(err, tracking.ErrNotFound))
}

func TestListRunsWithStatusFilter(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	runID := uuid.New()
	start := time.Unix(1700000000, 0).UTC()
	status := tracking.RunRunning
	filter := "running"

	mock.ExpectQuery("SELECT id, name, started_at").
		WithArgs(&filter, 20, 0).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "started_at", "finished_at", "status", "error_message"}).
			AddRow(runID, "logistic_regression - Fraud_Data", start, (*time.Time)(nil), tracking.RunRunning, (*string)(nil)))

	runs, err := store.ListRuns(context.Background(), &status, 20, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Nil(t, runs[0].FinishedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListMetrics(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	runID := uuid.New()
	at := time.Unix(1700000000, 0).UTC()

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(runID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT key, value, logged_at").
		WithArgs(runID).
		WillReturnRows(pgxmock.NewRows([]string{"key", "value", "logged_at"}).
			AddRow("accuracy", 0.93, at).
			AddRow("recall", 0.55, at))

	metrics, err := store.ListMetrics(context.Background(), runID)
	require.NoError(t, err)
	require.Len(t, metrics, 2)
	assert.Equal(t, "recall", metrics[1].Key)
	assert.Equal(t, runID, metrics[1].RunID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListMetricsMissingRun(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	runID := uuid.New()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(runID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	_, err := store.ListMetrics(context.Background(), runID)
	assert.True(t, errors.Is(err, tracking.ErrNotFound))
}
