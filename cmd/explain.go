package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/fraud-detection/internal/dataset"
	"github.com/JakeFAU/fraud-detection/internal/explain"
	"github.com/JakeFAU/fraud-detection/internal/explain/render"
	"github.com/JakeFAU/fraud-detection/internal/harness"
	"github.com/JakeFAU/fraud-detection/internal/model"
)

type explainFlags struct {
	modelPath    string
	datasetPath  string
	testFraction float64
	seed         uint64
	instance     int
	samples      int
	maxRows      int
	formats      []string
}

// newExplainCmd creates the 'explain' subcommand.
func newExplainCmd() *cobra.Command {
	var f explainFlags
	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Write a SHAP/LIME attribution report for a model",
		Long: `Loads a model artifact and the labeled dataset, recreates the train/test
split and writes a report with global SHAP attributions over the test set and
a LIME explanation of one test instance. PNG and PDF renderings need Chrome.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExplain(cmd, f)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&f.modelPath, "model", "", "model artifact path (default model_api.model_path)")
	flags.StringVar(&f.datasetPath, "dataset", "", "labeled CSV path (default stats_api.dataset_path)")
	flags.Float64Var(&f.testFraction, "test-fraction", 0.2, "held-out fraction")
	flags.Uint64Var(&f.seed, "seed", 42, "split and instance selection seed")
	flags.IntVar(&f.instance, "instance", -1, "test row to explain locally (random when negative)")
	flags.IntVar(&f.samples, "lime-samples", 5000, "LIME perturbation count")
	flags.IntVar(&f.maxRows, "max-rows", 0, "cap on test rows with per-instance SHAP values (0 for all)")
	flags.StringSliceVar(&f.formats, "format", nil, "extra rendering: png or pdf (repeatable)")
	return cmd
}

func runExplain(cmd *cobra.Command, f explainFlags) error {
	ctx := cmd.Context()
	formats := make([]explain.Format, 0, len(f.formats))
	for _, s := range f.formats {
		format, err := explain.ParseFormat(s)
		if err != nil {
			return err
		}
		formats = append(formats, format)
	}

	app, cleanup, err := newBatchApp(ctx, "explain")
	if err != nil {
		return err
	}
	defer cleanup()
	cfg := app.Config()
	logger := app.Logger()
	if f.modelPath == "" {
		f.modelPath = cfg.ModelAPI.ModelPath
	}
	if f.datasetPath == "" {
		f.datasetPath = cfg.StatsAPI.DatasetPath
	}

	blobs, err := app.Blobs(ctx)
	if err != nil {
		return err
	}
	clf, err := model.Load(ctx, blobs, f.modelPath)
	if err != nil {
		return err
	}
	ds, err := dataset.Open(ctx, blobs, f.datasetPath)
	if err != nil {
		return err
	}
	split, err := harness.SplitDataset(ds, f.testFraction, f.seed)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	report, err := explain.Build(ctx, clf, split.XTrain, split.XTest, explain.Options{
		Lime:          explain.LimeConfig{NumSamples: f.samples},
		Seed:          f.seed,
		InstanceIndex: f.instance,
		MaxGlobalRows: f.maxRows,
		Now:           now,
	})
	if err != nil {
		return fmt.Errorf("build report: %w", err)
	}

	var renderer explain.Renderer
	if len(formats) > 0 {
		chrome, err := render.NewChromedp(render.Config{
			ExecPath: cfg.Explain.ChromePath,
			Timeout:  time.Duration(cfg.Explain.RenderTimeoutSeconds) * time.Second,
		})
		if err != nil {
			return fmt.Errorf("start renderer: %w", err)
		}
		defer chrome.Close()
		renderer = chrome
	}

	prefix := cfg.Explain.OutputPrefix + "/" + reportName(report, now)
	out, err := explain.Save(ctx, blobs, prefix, report, renderer, formats...)
	if err != nil {
		return err
	}
	logger.Info("explanation written",
		zap.String("model_version", report.ModelVersion),
		zap.Int("instance", report.Local.InstanceIndex),
		zap.String("json", out.JSON),
		zap.String("html", out.HTML),
	)
	w := cmd.OutOrStdout()
	for _, uri := range []string{out.JSON, out.HTML, out.PNG, out.PDF} {
		if uri != "" {
			fmt.Fprintln(w, uri)
		}
	}
	return nil
}

func reportName(r explain.Report, now time.Time) string {
	if r.ModelVersion != "" {
		return r.ModelVersion
	}
	return strconv.FormatInt(now.Unix(), 10)
}
