package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func reindexCmd(e *env) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Recompute stale embeddings and rebuild the index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := e.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			bar := newProgressBar(cmd.ErrOrStderr(), -1, "embedding")
			rep, err := a.Pipeline.Reindex(ctx, force, func(n int) { _ = bar.Add(n) })
			_ = bar.Finish()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Embedded %d of %d (%d failed) with %s; index holds %d vectors (%s)\n",
				rep.Embedded, rep.Candidates, rep.Failed, rep.Model, rep.Indexed, rep.Duration.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "re-embed every vehicle, not only stale ones")
	return cmd
}
