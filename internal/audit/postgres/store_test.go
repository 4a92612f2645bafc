package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/fraud-detection/internal/audit"
)

func TestInsertPredictionsWritesBatch(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPredictionStoreWithPool(mock, "")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	a := audit.Event{
		PredictionID: uuid.New(), TS: now, Outcome: audit.OutcomePredicted,
		Label: "Fraud", Fraud: true, Probability: 0.8, ModelVersion: "v1",
		Latency: 1500 * time.Microsecond, Client: "c1",
	}
	b := audit.Event{
		PredictionID: uuid.New(), TS: now, Outcome: audit.OutcomePredicted,
		Label: "Not Fraud", Probability: 0.1, ModelVersion: "v1", Latency: time.Millisecond,
	}

	mock.ExpectExec(`INSERT INTO predictions .* VALUES \(\$1,\$2,\$3,\$4,\$5,\$6,\$7,\$8\), \(\$9,.*\$16\) ON CONFLICT \(id\) DO NOTHING`).
		WithArgs(
			a.PredictionID, now, "Fraud", true, 0.8, "v1", int64(1500), "c1",
			b.PredictionID, now, "Not Fraud", false, 0.1, "v1", int64(1000), "",
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))

	require.NoError(t, store.InsertPredictions(context.Background(), []audit.Event{a, b}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertPredictionsEmptyBatch(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPredictionStoreWithPool(mock, "audit_predictions")
	require.NoError(t, err)
	require.NoError(t, store.InsertPredictions(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertPredictionsPropagatesErrors(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPredictionStoreWithPool(mock, "predictions")
	require.NoError(t, err)
	mock.ExpectExec("INSERT INTO predictions").WillReturnError(errors.New("boom"))

	err = store.InsertPredictions(context.Background(), []audit.Event{{PredictionID: uuid.New(), TS: time.Now()}})
	require.ErrorContains(t, err, "insert predictions")
}

func TestInsertPredictionsSplitsLargeBatches(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPredictionStoreWithPool(mock, "predictions")
	require.NoError(t, err)
	store.rowsPerStmt = 2

	events := make([]audit.Event, 5)
	for i := range events {
		events[i] = audit.Event{PredictionID: uuid.New(), TS: time.Unix(int64(i), 0).UTC(), Label: "Not Fraud", ModelVersion: "v1"}
	}
	args := func(evts ...audit.Event) []any {
		var out []any
		for _, e := range evts {
			out = append(out, e.PredictionID, e.TS, e.Label, e.Fraud, e.Probability, e.ModelVersion, int64(0), "")
		}
		return out
	}
	two := `INSERT INTO predictions .* VALUES \(\$1,.*\$8\), \(\$9,.*\$16\) ON CONFLICT`
	mock.ExpectExec(two).WithArgs(args(events[0], events[1])...).WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectExec(two).WithArgs(args(events[2], events[3])...).WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectExec(`VALUES \(\$1,\$2,\$3,\$4,\$5,\$6,\$7,\$8\) ON CONFLICT`).
		WithArgs(args(events[4])...).WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.InsertPredictions(context.Background(), events))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertPredictionsStaysUnderBindLimit(t *testing.T) {
	t.Parallel()

	require.LessOrEqual(t, maxRowsPerStmt*predictionColumns, 65535)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPredictionStoreWithPool(mock, "predictions")
	require.NoError(t, err)

	events := make([]audit.Event, maxRowsPerStmt+1)
	for i := range events {
		events[i] = audit.Event{PredictionID: uuid.New()}
	}
	mock.ExpectExec(`\$65528\) ON CONFLICT`).WillReturnResult(pgxmock.NewResult("INSERT", int64(maxRowsPerStmt)))
	mock.ExpectExec(`VALUES \(\$1,\$2,\$3,\$4,\$5,\$6,\$7,\$8\) ON CONFLICT`).WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.InsertPredictions(context.Background(), events))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPredictionStoreWithPool(mock, "audit_predictions")
	require.NoError(t, err)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_predictions").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewPredictionStoreValidation(t *testing.T) {
	t.Parallel()

	_, err := NewPredictionStoreWithPool(nil, "predictions")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewPredictionStoreWithPool(mock, "bad-name;")
	require.Error(t, err)

	_, err = NewPredictionStore(context.Background(), Config{})
	require.Error(t, err)
}

var _ interface {
	InsertPredictions(context.Context, []audit.Event) error
} = (*PredictionStore)(nil)
