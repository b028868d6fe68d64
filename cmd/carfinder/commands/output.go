package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"

	"github.com/WessleyAI/carfinder/engine/domain"
	"github.com/WessleyAI/carfinder/engine/finder"
	"github.com/WessleyAI/carfinder/engine/semantic"
	"github.com/WessleyAI/carfinder/engine/store"
)

// newProgressBar draws on w. A negative total shows a spinner with a count.
func newProgressBar(w io.Writer, total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(
		total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("rows"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printStats(w io.Writer, st store.Stats, idx semantic.IndexInfo) {
	fmt.Fprintf(w, "Vehicles:    %d (local %d, cached live %d)\n", st.Total, st.Local, st.Live)
	fmt.Fprintf(w, "Makes:       %d\n", st.UniqueMakes)
	if st.MaxPrice > 0 {
		fmt.Fprintf(w, "Price range: %s - %s\n", domain.Dollars(st.MinPrice), domain.Dollars(st.MaxPrice))
	}
	fmt.Fprintf(w, "Embedded:    %d\n", st.Embedded)
	fmt.Fprintf(w, "Index:       %s, %d vectors", idx.Backend, idx.Size)
	if idx.Model != "" {
		fmt.Fprintf(w, " (%s)", idx.Model)
	}
	fmt.Fprintln(w)
}

func printResults(w io.Writer, res finder.SearchResult) {
	if res.Total == 0 {
		fmt.Fprintln(w, res.Explanation)
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tVEHICLE\tPRICE\tMILES\tFUEL\tSCORE\tSOURCE")
	for i, c := range res.Candidates {
		v := c.Vehicle
		price := "-"
		if v.Price > 0 {
			price = domain.Dollars(v.Price)
		}
		source := v.Source
		if len(c.Sources) > 0 {
			source = strings.Join(c.Sources, ",")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%.2f\t%s\n", i+1, v.Title(), price, v.Mileage, v.FuelType, c.Total, source)
	}
	tw.Flush()
	for i, c := range res.Candidates {
		if c.Explanation != "" {
			fmt.Fprintf(w, "%d. %s\n", i+1, c.Explanation)
		}
	}
}
