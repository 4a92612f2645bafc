// Package harness trains every configured model on a shared split,
// evaluates it on the held-out rows and records each pass as a tracked run.
package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/fraud-detection/internal/clock"
	"github.com/JakeFAU/fraud-detection/internal/dataset"
	"github.com/JakeFAU/fraud-detection/internal/evaluation"
	"github.com/JakeFAU/fraud-detection/internal/features"
	"github.com/JakeFAU/fraud-detection/internal/ids"
	"github.com/JakeFAU/fraud-detection/internal/model"
	"github.com/JakeFAU/fraud-detection/internal/tracking"
)

// Split is the train/test partition every model shares.
type Split struct {
	XTrain       [][]float64
	YTrain       []int
	XTest        [][]float64
	YTest        []int
	FeatureNames []string
}

// Validate checks shapes.
func (s Split) Validate() error {
	if len(s.XTrain) == 0 || len(s.XTest) == 0 {
		return errors.New("train and test sets must be non-empty")
	}
	if len(s.XTrain) != len(s.YTrain) || len(s.XTest) != len(s.YTest) {
		return errors.New("feature and label counts differ")
	}
	if len(s.FeatureNames) == 0 {
		return errors.New("feature names are required")
	}
	return nil
}

// Result is the outcome of one model.
type Result struct {
	Model      string
	Dataset    string
	RunID      uuid.UUID
	Scores     evaluation.Scores
	Classifier model.Classifier
	Err        error
}

// Observer is notified when a run finishes.
type Observer func(status tracking.RunStatus)

// Harness runs train-and-evaluate passes.
type Harness struct {
	repo        tracking.Repository
	ids         ids.Generator
	clock       clock.Clock
	out         io.Writer
	logger      *zap.Logger
	concurrency int
	observe     Observer
	mu          sync.Mutex
}

// Option configures a Harness.
type Option func(*Harness)

// WithIDs overrides run ID generation.
func WithIDs(g ids.Generator) Option { return func(h *Harness) { h.ids = g } }

// WithClock overrides the time source.
func WithClock(c clock.Clock) Option { return func(h *Harness) { h.clock = c } }

// WithOutput sets where the per-model summary lines are printed.
func WithOutput(w io.Writer) Option { return func(h *Harness) { h.out = w } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(h *Harness) { h.logger = l } }

// WithConcurrency bounds how many models train at once.
func WithConcurrency(n int) Option { return func(h *Harness) { h.concurrency = n } }

// WithObserver registers a completion callback, e.g. a metrics counter.
func WithObserver(o Observer) Option { return func(h *Harness) { h.observe = o } }

// New creates a Harness that records runs in repo.
func New(repo tracking.Repository, opts ...Option) *Harness {
	h := &Harness{
		repo:        repo,
		ids:         ids.NewUUIDv7(),
		clock:       clock.NewSystem(),
		out:         io.Discard,
		logger:      zap.NewNop(),
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.concurrency <= 0 {
		h.concurrency = 1
	}
	return h
}

// RunName formats the tracked run name.
func RunName(modelName, datasetName string) string {
	return modelName + " - " + datasetName
}

// TrainAndEvaluate fits each trainer on the training rows, scores hard
// predictions on the test rows and logs params and metrics per run.
// Results come back sorted by model name. A model that fails to fit is
// recorded as an errored run and reported in the joined error; the other
// models still run.
func (h *Harness) TrainAndEvaluate(
	ctx context.Context,
	trainers map[string]model.Trainer,
	split Split,
	datasetName string,
) ([]Result, error) {
	if err := split.Validate(); err != nil {
		return nil, fmt.Errorf("invalid split: %w", err)
	}
	names := make([]string, 0, len(trainers))
	for name := range trainers {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]Result, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.concurrency)
	for i, name := range names {
		g.Go(func() error {
			res := h.runOne(gctx, name, trainers[name], split, datasetName)
			results[i] = res
			// Tracking failures abort the batch; model failures do not.
			var terr *trackingError
			if errors.As(res.Err, &terr) {
				return res.Err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}

	var errs []error
	for _, res := range results {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.Model, res.Err))
			continue
		}
		h.printResult(res)
	}
	return results, errors.Join(errs...)
}

type trackingError struct{ err error }

func (e *trackingError) Error() string { return "tracking: " + e.err.Error() }
func (e *trackingError) Unwrap() error { return e.err }

func (h *Harness) runOne(ctx context.Context, name string, trainer model.Trainer, split Split, datasetName string) Result {
	res := Result{Model: name, Dataset: datasetName}
	logger := h.logger.With(zap.String("model", name), zap.String("dataset", datasetName))

	runID, err := h.ids.NewID()
	if err != nil {
		res.Err = &trackingError{err}
		return res
	}
	res.RunID = runID
	logger = logger.With(zap.String("run_id", runID.String()))

	if err := h.repo.StartRun(ctx, runID, RunName(name, datasetName), h.clock.Now()); err != nil {
		res.Err = &trackingError{err}
		return res
	}
	if err := h.repo.LogParams(ctx, runID, map[string]string{"model": name, "dataset": datasetName}); err != nil {
		res.Err = &trackingError{err}
		return res
	}

	logger.Info("training model", zap.Int("train_rows", len(split.XTrain)))
	scores, clf, fitErr := h.fitAndScore(ctx, trainer, split)
	if fitErr != nil {
		logger.Error("run failed", zap.Error(fitErr))
		msg := fitErr.Error()
		if err := h.repo.CompleteRun(ctx, runID, h.clock.Now(), tracking.RunError, &msg); err != nil {
			res.Err = &trackingError{err}
			return res
		}
		h.notify(tracking.RunError)
		res.Err = fitErr
		return res
	}
	res.Scores = scores
	res.Classifier = clf

	if len(clf.Artifact().Params) > 0 {
		if err := h.repo.LogParams(ctx, runID, clf.Artifact().Params); err != nil {
			res.Err = &trackingError{err}
			return res
		}
	}
	if scores.ROCAUC == nil {
		logger.Warn("roc_auc skipped: test labels hold a single class")
	}
	if err := h.repo.LogMetrics(ctx, runID, scores.Map(), h.clock.Now()); err != nil {
		res.Err = &trackingError{err}
		return res
	}
	if err := h.repo.CompleteRun(ctx, runID, h.clock.Now(), tracking.RunSuccess, nil); err != nil {
		res.Err = &trackingError{err}
		return res
	}
	h.notify(tracking.RunSuccess)
	logger.Info("run complete", zap.Float64("accuracy", scores.Accuracy), zap.Float64("recall", scores.Recall))
	return res
}

func (h *Harness) fitAndScore(ctx context.Context, trainer model.Trainer, split Split) (evaluation.Scores, model.Classifier, error) {
	clf, err := trainer.Fit(ctx, split.XTrain, split.YTrain, split.FeatureNames)
	if err != nil {
		return evaluation.Scores{}, nil, fmt.Errorf("fit: %w", err)
	}
	preds, err := model.PredictAll(clf, split.XTest)
	if err != nil {
		return evaluation.Scores{}, nil, fmt.Errorf("predict: %w", err)
	}
	scores, err := evaluation.Score(split.YTest, preds)
	if err != nil {
		return evaluation.Scores{}, nil, fmt.Errorf("score: %w", err)
	}
	return scores, clf, nil
}

func (h *Harness) notify(status tracking.RunStatus) {
	if h.observe != nil {
		h.observe(status)
	}
}

// FormatResult renders the one-line summary printed after each model.
func FormatResult(res Result) string {
	auc := "n/a"
	if res.Scores.ROCAUC != nil {
		auc = fmt.Sprintf("%.4f", *res.Scores.ROCAUC)
	}
	return fmt.Sprintf("%s on %s: Accuracy=%.4f, Precision=%.4f, Recall=%.4f, F1=%.4f, ROC-AUC=%s",
		res.Model, res.Dataset, res.Scores.Accuracy, res.Scores.Precision, res.Scores.Recall, res.Scores.F1, auc)
}

func (h *Harness) printResult(res Result) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := fmt.Fprintln(h.out, FormatResult(res)); err != nil {
		h.logger.Warn("failed to print result", zap.Error(err))
	}
}

// SplitDataset derives the shared train/test matrices. transaction_count is
// counted over the whole dataset, as preprocessing did before splitting.
func SplitDataset(ds *dataset.Dataset, testFraction float64, seed uint64) (Split, error) {
	train, test, err := ds.Split(testFraction, seed)
	if err != nil {
		return Split{}, fmt.Errorf("split dataset: %w", err)
	}
	counts := ds.DeviceCounts()
	xTrain, yTrain := features.Matrix(train, counts)
	xTest, yTest := features.Matrix(test, counts)
	return Split{
		XTrain:       xTrain,
		YTrain:       yTrain,
		XTest:        xTest,
		YTest:        yTest,
		FeatureNames: features.Names(),
	}, nil
}
