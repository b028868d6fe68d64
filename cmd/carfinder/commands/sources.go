package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func sourcesCmd(e *env) *cobra.Command {
	var refresh, asJSON bool
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Report the health of every data source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := e.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			a.LoadIndex(ctx)

			if refresh {
				if _, err := a.Finder.RefreshLive(ctx); err != nil {
					return err
				}
			}
			st, err := a.Finder.Status(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, st)
			}

			fmt.Fprintf(out, "Live data:   %v\n", st.LiveEnabled)
			fmt.Fprintf(out, "LLM:         %v (%s)\n", st.LLMAvailable, e.cfg.OllamaModel)
			fmt.Fprintf(out, "Embeddings:  %s\n", st.EmbeddingModel)
			printStats(out, st.Catalog, st.Index)
			fmt.Fprintln(out)

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SOURCE\tSTATUS\tLISTINGS\tLATENCY\tBREAKER\tERROR")
			for _, s := range st.Sources {
				status := "ok"
				switch {
				case s.CheckedAt.IsZero():
					status = "unchecked"
				case !s.OK:
					status = "failed"
				case s.Cached:
					status = "cached"
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%dms\t%s\t%s\n", s.Name, status, s.Count, s.LatencyMS, s.Breaker, s.Error)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "re-query every source before reporting")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
