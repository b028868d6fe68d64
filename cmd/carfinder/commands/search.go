package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/WessleyAI/carfinder/engine/domain"
	"github.com/WessleyAI/carfinder/engine/prefs"
)

func searchCmd(e *env) *cobra.Command {
	var (
		p          domain.Preference
		priorities []string
		limit      int
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "search [description]",
		Short: "Rank vehicles against a preference",
		Long: `Rank vehicles against a preference. A free-text description is read the
same way a chat message is; flags override what it says.`,
		Example: `  carfinder search "reliable hybrid suv under $35k"
  carfinder search --make toyota --budget-max 30000 --priority efficiency`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			for _, s := range priorities {
				p.Priorities = append(p.Priorities, domain.Objective(strings.ToLower(s)))
			}
			pref := p
			if text := strings.Join(args, " "); text != "" {
				pref = prefs.Rules(domain.SanitizeText(text)).Merge(p)
			}

			a, err := e.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			a.LoadIndex(ctx)

			res, err := a.Finder.Search(ctx, pref, limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			printResults(cmd.OutOrStdout(), res)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&p.Make, "make", "", "vehicle make")
	f.StringVar(&p.Model, "model", "", "vehicle model")
	f.StringVar(&p.FuelType, "fuel", "", "fuel type (gasoline, hybrid, electric, diesel, cng, ethanol)")
	f.StringVar(&p.BodyClass, "body", "", "body class (sedan, suv, truck, ...)")
	f.Float64Var(&p.BudgetMin, "budget-min", 0, "minimum price")
	f.Float64Var(&p.BudgetMax, "budget-max", 0, "maximum price")
	f.IntVar(&p.YearMin, "year-min", 0, "oldest model year")
	f.IntVar(&p.MileageMax, "mileage-max", 0, "maximum odometer reading")
	f.StringVar(&p.Location, "location", "", "city or zip code")
	f.StringSliceVar(&p.Features, "feature", nil, "wanted feature, repeatable")
	f.StringSliceVar(&priorities, "priority", nil, "price, reliability, efficiency, safety or features, repeatable")
	f.IntVarP(&limit, "limit", "n", 0, "maximum results (default MAX_RESULTS)")
	f.BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
