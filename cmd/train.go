package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/fraud-detection/internal/dataset"
	"github.com/JakeFAU/fraud-detection/internal/harness"
	"github.com/JakeFAU/fraud-detection/internal/metrics"
	"github.com/JakeFAU/fraud-detection/internal/model"
	"github.com/JakeFAU/fraud-detection/internal/storage"
	"github.com/JakeFAU/fraud-detection/internal/tracking"
)

// newTrainCmd creates the 'train' subcommand.
func newTrainCmd() *cobra.Command {
	var experimentPath string
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train and evaluate the models of an experiment",
		Long: `Loads the experiment file, splits the dataset, trains every configured
model, logs parameters and metrics as tracked runs and optionally exports one
model as the serving artifact.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTrain(cmd, experimentPath)
		},
	}
	cmd.Flags().StringVar(&experimentPath, "experiment", "experiments/default.yaml", "experiment YAML file")
	return cmd
}

func runTrain(cmd *cobra.Command, experimentPath string) error {
	ctx := cmd.Context()
	exp, err := readExperiment(experimentPath)
	if err != nil {
		return err
	}

	app, cleanup, err := newBatchApp(ctx, "train")
	if err != nil {
		return err
	}
	defer cleanup()
	logger := app.Logger()

	if exp.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, exp.Timeout)
		defer cancel()
	}

	blobs, err := app.Blobs(ctx)
	if err != nil {
		return err
	}
	repo, err := app.Tracking(ctx)
	if err != nil {
		return err
	}

	ds, err := dataset.Open(ctx, blobs, exp.Dataset.Path)
	if err != nil {
		return err
	}
	split, err := harness.SplitDataset(ds, exp.Dataset.TestFraction, exp.Dataset.Seed)
	if err != nil {
		return err
	}
	logger.Info("dataset split",
		zap.String("dataset", exp.Dataset.Name),
		zap.Int("train_rows", len(split.XTrain)),
		zap.Int("test_rows", len(split.XTest)),
	)

	trainers, err := exp.Trainers(time.Now)
	if err != nil {
		return err
	}

	metrics.Init()
	h := harness.New(repo,
		harness.WithOutput(cmd.OutOrStdout()),
		harness.WithLogger(logger.Named("harness")),
		harness.WithConcurrency(exp.Workers),
		harness.WithObserver(func(status tracking.RunStatus) {
			metrics.ObserveRun(string(status))
		}),
	)
	results, runErr := h.TrainAndEvaluate(ctx, trainers, split, exp.Dataset.Name)

	if exp.Export == nil {
		return runErr
	}
	return errors.Join(runErr, exportModel(ctx, blobs, exp.Export, results, logger))
}

func readExperiment(path string) (harness.Experiment, error) {
	f, err := os.Open(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return harness.Experiment{}, fmt.Errorf("open experiment: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only handle
	exp, err := harness.LoadExperiment(f)
	if err != nil {
		return harness.Experiment{}, fmt.Errorf("experiment %s: %w", path, err)
	}
	return exp, nil
}

func exportModel(ctx context.Context, w storage.Writer, spec *harness.ExportSpec, results []harness.Result, logger *zap.Logger) error {
	for _, res := range results {
		if res.Model != spec.Model {
			continue
		}
		if res.Err != nil || res.Classifier == nil {
			return fmt.Errorf("export %s: model did not train", spec.Model)
		}
		uri, err := model.Save(ctx, w, spec.Path, res.Classifier)
		if err != nil {
			return fmt.Errorf("export %s: %w", spec.Model, err)
		}
		logger.Info("model exported",
			zap.String("model", spec.Model),
			zap.String("uri", uri),
			zap.String("version", res.Classifier.Artifact().Version),
		)
		return nil
	}
	return fmt.Errorf("export %s: no result for model", spec.Model)
}
