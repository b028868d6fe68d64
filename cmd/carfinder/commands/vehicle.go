package commands

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/WessleyAI/carfinder/engine/domain"
	"github.com/WessleyAI/carfinder/engine/ingest"
)

func vehicleCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vehicle",
		Short: "Show, edit or remove one catalog vehicle",
	}
	cmd.AddCommand(vehicleShowCmd(e), vehicleSetCmd(e), vehicleRemoveCmd(e))
	return cmd
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid vehicle id %q", arg)
	}
	return id, nil
}

func vehicleShowCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a vehicle as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := e.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			v, err := a.Store.Get(ctx, id)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), v)
		},
	}
}

func vehicleSetCmd(e *env) *cobra.Command {
	var (
		price       float64
		mileage     int
		safety      float64
		description string
		features    string
	)
	cmd := &cobra.Command{
		Use:   "set <id>",
		Short: "Edit a vehicle; changed text is re-embedded",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var patch domain.VehiclePatch
			flags := cmd.Flags()
			if flags.Changed("price") {
				patch.Price = &price
			}
			if flags.Changed("mileage") {
				patch.Mileage = &mileage
			}
			if flags.Changed("safety") {
				patch.SafetyRating = &safety
			}
			if flags.Changed("description") {
				patch.Description = &description
			}
			if flags.Changed("features") {
				fs := ingest.ParseFeatures(features)
				patch.Features = &fs
			}
			if patch.IsEmpty() {
				return errors.New("nothing to change; pass at least one flag")
			}

			ctx := cmd.Context()
			a, err := e.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			v, err := a.Store.Get(ctx, id)
			if err != nil {
				return err
			}
			v, err = a.Pipeline.Update(ctx, patch.Apply(v))
			var ve *domain.ValidationError
			if errors.As(err, &ve) {
				return errors.New(domain.UserMessage(err))
			}
			if err != nil {
				return err
			}
			state := "embedded"
			if len(v.Embedding) == 0 {
				state = "stale, run reindex"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated #%d %s (%s)\n", v.ID, v.Title(), state)
			return nil
		},
	}
	f := cmd.Flags()
	f.Float64Var(&price, "price", 0, "asking price in dollars, 0 for unknown")
	f.IntVar(&mileage, "mileage", 0, "odometer reading")
	f.Float64Var(&safety, "safety", 0, "safety rating 0-5")
	f.StringVar(&description, "description", "", "free-text description")
	f.StringVar(&features, "features", "", `feature list, e.g. "Sunroof;Bluetooth"`)
	return cmd
}

func vehicleRemoveCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a vehicle and rebuild the index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := e.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Pipeline.Remove(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed #%d\n", id)
			return nil
		},
	}
}
