// Package cmd defines and implements the fraudctl commands.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/fraud-detection/internal/config"
	"github.com/JakeFAU/fraud-detection/internal/server"
)

// configKeyType is the key for storing the loaded Config in the context.
type configKeyType string

const configKey configKeyType = "config"

// newRootCmd creates the root command and registers every subcommand.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "fraudctl",
		Short: "Fraud detection services and model tooling.",
		Long: `fraudctl runs the fraud detection demo: the prediction API, the
dataset statistics API and the browser dashboard, plus the offline
train/evaluate harness, the attribution report and a dataset replay client.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Runs before every subcommand so they all share one configuration.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (defaults plus FRAUD_* environment when empty)")

	cmd.AddCommand(
		newServeCmd("model-api", "Serve the fraud prediction API", server.BuildModelAPI),
		newServeCmd("stats-api", "Serve dataset statistics and tracked runs", server.BuildStatsAPI),
		newServeCmd("dashboard", "Serve the browser dashboard", server.BuildDashboard),
		newTrainCmd(),
		newExplainCmd(),
		newReplayCmd(),
	)
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func resolveConfig(ctx context.Context) (config.Config, error) {
	cfg, ok := ctx.Value(configKey).(config.Config)
	if !ok {
		return config.Config{}, errors.New("configuration not loaded")
	}
	return cfg, nil
}

// newBatchApp builds an App for a one-shot command. The returned cleanup
// releases whatever the command opened.
func newBatchApp(ctx context.Context, service string) (*server.App, func(), error) {
	cfg, err := resolveConfig(ctx)
	if err != nil {
		return nil, nil, err
	}
	app, err := server.NewApp(cfg, service)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = app.Close(context.WithoutCancel(ctx)) //nolint:errcheck // close failures are logged by the app
	}
	return app, cleanup, nil
}
