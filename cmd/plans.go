package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/voltpower/volt/internal/executor"
	"github.com/voltpower/volt/internal/plan"
	"github.com/voltpower/volt/internal/power"
	"github.com/voltpower/volt/internal/prefs"
	"github.com/voltpower/volt/internal/ui"
)

func init() {
	rootCmd.AddCommand(plansCmd)
}

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "List the installed power plans",
	Long: `Runs "powercfg /L" and prints every plan. The active plan is marked, and
plans saved for a power source are tagged with it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.CommandTimeout)
		defer cancel()

		snap, err := newCatalog().List(ctx)
		if err != nil {
			return err
		}
		saved := prefs.Open(cfg.PrefsFile, prefs.Options{Logger: logger.Named("prefs")}).Snapshot()

		if len(snap.Plans) == 0 {
			ui.Warn("No power plans found")
			return nil
		}
		for _, p := range snap.Plans {
			var tags []string
			for _, st := range power.States {
				if id, ok := saved.Get(st); ok && id == p.ID {
					tags = append(tags, st.Label())
				}
			}
			ui.Plan(snap.IsActive(p.ID), p.Name, p.ID.String(), tags...)
		}
		return nil
	},
}

func planOptions() plan.Options {
	return plan.Options{
		Command: cfg.Powercfg,
		Marker:  cfg.SchemeMarker,
		Logger:  logger.Named("plan"),
	}
}

func newCatalog() *plan.Catalog {
	return plan.NewCatalog(executor.New(cfg.CommandTimeout), planOptions())
}
