package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/WessleyAI/carfinder/engine/ingest"
)

// maxRowErrors bounds the row errors printed after an ingest.
const maxRowErrors = 10

func ingestCmd(e *env) *cobra.Command {
	var opts ingest.IngestOptions
	cmd := &cobra.Command{
		Use:   "ingest <file.csv>",
		Short: "Load a vehicle catalog CSV",
		Long: `Load a vehicle catalog CSV. Columns make, model and year are required;
price, mileage, fuel_type, transmission, body_class, location, safety_rating,
mpg_city, mpg_highway, description, features and vin are optional.

Rows are appended by default; duplicate VINs are skipped. --replace swaps the
local catalog in one transaction.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			a, err := e.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			bar := newProgressBar(cmd.ErrOrStderr(), -1, "ingesting")
			opts.Progress = func(n int) { _ = bar.Add(n) }
			rep, err := a.Pipeline.Ingest(ctx, f, opts)
			_ = bar.Finish()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Rows %d: inserted %d, duplicates %d, invalid %d, embedded %d",
				rep.Rows, rep.Inserted, rep.Duplicates, rep.Invalid, rep.Embedded)
			if opts.Replace {
				fmt.Fprintf(out, ", replaced %d", rep.Replaced)
			}
			fmt.Fprintf(out, " (%s)\n", rep.Duration.Round(time.Millisecond))
			for i, re := range rep.Errors {
				if i == maxRowErrors {
					fmt.Fprintf(out, "  ... %d more\n", len(rep.Errors)-maxRowErrors)
					break
				}
				fmt.Fprintf(out, "  line %d: %s\n", re.Line, re.Err)
			}

			st, err := a.Store.Stats(ctx)
			if err != nil {
				return err
			}
			printStats(out, st, a.Index.Info())
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.Replace, "replace", false, "replace the local catalog instead of appending")
	cmd.Flags().BoolVar(&opts.NoIndex, "no-index", false, "skip rebuilding the embedding index")
	return cmd
}
