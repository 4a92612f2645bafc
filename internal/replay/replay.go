// Package replay sends a labeled dataset through the prediction service and
// scores the answers against the labels.
package replay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/fraud-detection/internal/api"
	"github.com/JakeFAU/fraud-detection/internal/dataset"
	"github.com/JakeFAU/fraud-detection/internal/evaluation"
	"github.com/JakeFAU/fraud-detection/internal/features"
)

const defaultConcurrency = 8

// Predictor scores one request body.
type Predictor interface {
	Predict(ctx context.Context, payload map[string]any) (api.PredictResponse, error)
}

// Config tunes a replay.
type Config struct {
	// Concurrency bounds in-flight requests. Defaults to 8.
	Concurrency int
	// Limit replays only the first Limit rows when > 0.
	Limit  int
	Logger *zap.Logger
	Now    func() time.Time
}

// Report summarizes a replay. Failed requests are counted in Errors and left
// out of the confusion matrix.
type Report struct {
	Confusion evaluation.Confusion `json:"confusion"`
	Accuracy  float64              `json:"accuracy"`
	Precision float64              `json:"precision"`
	Recall    float64              `json:"recall"`
	F1        float64              `json:"f1_score"`
	Sent      int                  `json:"sent"`
	Errors    int                  `json:"errors"`
	Duration  time.Duration        `json:"duration_ns"`
}

// Run replays ds. It fails only when ctx is cancelled; per-row errors are
// counted.
func Run(ctx context.Context, ds *dataset.Dataset, p Predictor, cfg Config) (Report, error) {
	if p == nil {
		return Report{}, fmt.Errorf("replay: predictor is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	conc := cfg.Concurrency
	if conc <= 0 {
		conc = defaultConcurrency
	}
	rows := ds.Rows()
	if cfg.Limit > 0 && cfg.Limit < len(rows) {
		rows = rows[:cfg.Limit]
	}
	counts := ds.DeviceCounts()
	start := now()

	var (
		mu  sync.Mutex
		rep Report
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(conc)
	for i, tx := range rows {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			payload, err := features.Payload(features.FromTransaction(tx, counts))
			if err != nil {
				return err
			}
			resp, err := p.Predict(gctx, payload)
			mu.Lock()
			defer mu.Unlock()
			rep.Sent++
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				rep.Errors++
				logger.Warn("replay request failed", zap.Int("row", i), zap.Error(err))
				return nil
			}
			pred := 0
			if resp.Prediction == api.LabelFraud {
				pred = 1
			}
			rep.Confusion.Add(tx.Class, pred)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}

	rep.Accuracy = rep.Confusion.Accuracy()
	rep.Precision = rep.Confusion.Precision()
	rep.Recall = rep.Confusion.Recall()
	rep.F1 = rep.Confusion.F1()
	rep.Duration = now().Sub(start)
	logger.Info("replay finished",
		zap.Int("sent", rep.Sent),
		zap.Int("errors", rep.Errors),
		zap.Duration("duration", rep.Duration),
	)
	return rep, nil
}

// Format renders the report as a small text table.
func Format(r Report) string {
	c := r.Confusion
	return fmt.Sprintf(
		"                Pred Fraud  Pred Legit\n"+
			"Actual Fraud    %10d  %10d\n"+
			"Actual Legit    %10d  %10d\n"+
			"Accuracy=%.4f, Precision=%.4f, Recall=%.4f, F1=%.4f, Sent=%d, Errors=%d\n",
		c.TP, c.FN, c.FP, c.TN,
		r.Accuracy, r.Precision, r.Recall, r.F1, r.Sent, r.Errors,
	)
}
