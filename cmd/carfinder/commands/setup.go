package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func setupCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Create the database and print catalog statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := e.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			a.LoadIndex(ctx)
			st, err := a.Store.Stats(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Database:    %s\n", e.cfg.DatabasePath)
			printStats(out, st, a.Index.Info())
			if st.Total == 0 {
				fmt.Fprintln(out, "\nThe catalog is empty. Load one with: carfinder ingest <file.csv>")
			}
			return nil
		},
	}
}
