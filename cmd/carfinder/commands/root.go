// Package commands implements the carfinder CLI.
package commands

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/WessleyAI/carfinder/engine/app"
	"github.com/WessleyAI/carfinder/pkg/config"
)

// env is shared by every subcommand. It is filled in by the root pre-run.
type env struct {
	cfg     *config.Config
	logger  *slog.Logger
	verbose bool
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:   "carfinder",
		Short: "Car shopping assistant over a local catalog and live listings",
		Long: `carfinder loads a vehicle catalog from CSV, indexes it for semantic search,
and ranks cars against your budget, needs and priorities. Live listing
sources are queried when ENABLE_LIVE_DATA is set.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if e.verbose {
				cfg.LogLevel = "debug"
			}
			e.cfg = cfg
			e.logger = config.NewLogger(cfg.LogLevel, cfg.LogFormat)
			slog.SetDefault(e.logger)
			return nil
		},
	}
	root.PersistentFlags().BoolVarP(&e.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		setupCmd(e),
		ingestCmd(e),
		reindexCmd(e),
		searchCmd(e),
		chatCmd(e),
		sourcesCmd(e),
		vehicleCmd(e),
	)
	return root
}

// Execute runs the CLI.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

func (e *env) open(ctx context.Context) (*app.App, error) {
	return app.New(ctx, e.cfg, e.logger)
}
