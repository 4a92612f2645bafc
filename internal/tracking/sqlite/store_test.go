package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/fraud-detection/internal/tracking"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runs.db")
	store, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(" ")
	assert.Error(t, err)
}

func TestStoreLifecycle(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()
	runID := uuid.New()
	start := time.Date(2025, 2, 1, 9, 30, 0, 0, time.UTC)

	require.NoError(t, store.StartRun(ctx, runID, "majority - Fraud_Data", start))
	require.NoError(t, store.LogParams(ctx, runID, map[string]string{"model": "majority", "dataset": "Fraud_Data"}))
	require.NoError(t, store.LogParams(ctx, runID, map[string]string{"model": "majority_v2"}))
	require.NoError(t, store.LogMetrics(ctx, runID, map[string]float64{"accuracy": 0.9, "recall": 1}, start))
	require.NoError(t, store.CompleteRun(ctx, runID, start.Add(time.Minute), tracking.RunSuccess, nil))

	run, err := store.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, "majority - Fraud_Data", run.Name)
	assert.Equal(t, tracking.RunSuccess, run.Status)
	assert.Equal(t, start, run.StartedAt)
	require.NotNil(t, run.FinishedAt)
	assert.Equal(t, start.Add(time.Minute), *run.FinishedAt)
	assert.Nil(t, run.ErrorMessage)
	assert.Equal(t, map[string]string{"model": "majority_v2", "dataset": "Fraud_Data"}, run.Params)

	metrics, err := store.ListMetrics(ctx, runID)
	require.NoError(t, err)
	require.Len(t, metrics, 2)
	assert.Equal(t, "accuracy", metrics[0].Key)
	assert.Equal(t, 0.9, metrics[0].Value)
}

func TestStoreNotFound(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()
	missing := uuid.New()

	_, err := store.GetRun(ctx, missing)
	assert.True(t, errors.Is(err, tracking.ErrNotFound))
	assert.True(t, errors.Is(store.CompleteRun(ctx, missing, time.Now(), tracking.RunError, nil), tracking.ErrNotFound))
	assert.True(t, errors.Is(store.LogParams(ctx, missing, map[string]string{"a": "b"}), tracking.ErrNotFound))
	_, err = store.ListMetrics(ctx, missing)
	assert.True(t, errors.Is(err, tracking.ErrNotFound))
}

func TestStoreListRuns(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		id := uuid.New()
		ids = append(ids, id)
		require.NoError(t, store.StartRun(ctx, id, "run", base.Add(time.Duration(i)*time.Hour)))
	}
	msg := "fit failed"
	require.NoError(t, store.CompleteRun(ctx, ids[1], base.Add(2*time.Hour), tracking.RunError, &msg))

	all, err := store.ListRuns(ctx, nil, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].ID)

	status := tracking.RunError
	failed, err := store.ListRuns(ctx, &status, 10, 0)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.NotNil(t, failed[0].ErrorMessage)
	assert.Equal(t, msg, *failed[0].ErrorMessage)

	page, err := store.ListRuns(ctx, nil, 1, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[0], page[0].ID)
}

func TestStoreReopenKeepsData(t *testing.T) {
	store, path := openTestStore(t)
	ctx := context.Background()
	runID := uuid.New()
	require.NoError(t, store.StartRun(ctx, runID, "persisted", time.Now()))
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close() //nolint:errcheck

	run, err := reopened.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, "persisted", run.Name)
}
