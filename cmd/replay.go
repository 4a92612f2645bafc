package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/fraud-detection/internal/dataset"
	"github.com/JakeFAU/fraud-detection/internal/replay"
)

// newReplayCmd creates the 'replay' subcommand.
func newReplayCmd() *cobra.Command {
	var (
		datasetPath string
		concurrency int
		limit       int
	)
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a labeled CSV through the prediction API",
		Long: `Derives the feature payload of every row, posts it to the configured
prediction service and prints the confusion matrix against the labels.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			app, cleanup, err := newBatchApp(ctx, "replay")
			if err != nil {
				return err
			}
			defer cleanup()
			if datasetPath == "" {
				datasetPath = app.Config().StatsAPI.DatasetPath
			}

			blobs, err := app.Blobs(ctx)
			if err != nil {
				return err
			}
			ds, err := dataset.Open(ctx, blobs, datasetPath)
			if err != nil {
				return err
			}
			predictor, err := app.PredictClient()
			if err != nil {
				return err
			}
			report, err := replay.Run(ctx, ds, predictor, replay.Config{
				Concurrency: concurrency,
				Limit:       limit,
				Logger:      app.Logger().Named("replay"),
				Now:         time.Now,
			})
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), replay.Format(report))
			return nil
		},
	}
	cmd.Flags().StringVar(&datasetPath, "dataset", "", "labeled CSV path (default stats_api.dataset_path)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 8, "in-flight requests")
	cmd.Flags().IntVar(&limit, "limit", 0, "replay only the first N rows (0 for all)")
	return cmd
}
