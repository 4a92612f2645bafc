package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/fraud-detection/internal/server"
)

// newServeCmd wraps a service builder in a long-running command.
func newServeCmd(use, short string, build server.Build) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd.Context())
			if err != nil {
				return err
			}
			app, err := build(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("%s: %w", use, err)
			}
			return app.Run(cmd.Context())
		},
	}
}
