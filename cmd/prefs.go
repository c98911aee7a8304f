package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/voltpower/volt/internal/client"
	"github.com/voltpower/volt/internal/executor"
	"github.com/voltpower/volt/internal/plan"
	"github.com/voltpower/volt/internal/power"
	"github.com/voltpower/volt/internal/prefs"
	"github.com/voltpower/volt/internal/protocol"
	"github.com/voltpower/volt/internal/status"
	"github.com/voltpower/volt/internal/ui"
)

func init() {
	rootCmd.AddCommand(prefsCmd, setCmd, unsetCmd, applyCmd, statusCmd)
}

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Show the saved plan for each power source",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store := openStore()
		ui.KeyValue("File", store.Path())
		printPreferences(store.Snapshot())
		return nil
	},
}

var setCmd = &cobra.Command{
	Use:   "set <ac|battery> <plan-guid>",
	Short: "Save the plan for a power source",
	Long: `Saves the plan to use on AC or battery power.

If a volt instance is running it applies the change, activating the plan at
once when the machine is on that power source. Otherwise the preference file
is updated and nothing is activated.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		state, err := power.ParseState(args[0])
		if err != nil {
			return err
		}
		id, err := plan.ParseID(args[1])
		if err != nil {
			return err
		}

		if api := runningInstance(cmd.Context()); api != nil {
			st, err := api.SetPreference(cmd.Context(), state, id)
			if err != nil {
				return err
			}
			ui.Success("%s plan set to %s %s", state.Label(), id, ui.Dim("(via running instance)"))
			ui.Status(st)
			return nil
		}

		store := openStore()
		if err := store.Set(state, id); err != nil {
			return err
		}
		ui.Success("%s plan set to %s", state.Label(), id)
		return nil
	},
}

var unsetCmd = &cobra.Command{
	Use:   "unset <ac|battery>",
	Short: "Forget the plan saved for a power source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		state, err := power.ParseState(args[0])
		if err != nil {
			return err
		}
		if runningInstance(cmd.Context()) != nil {
			return errors.New("volt is running; exit it before clearing a preference")
		}
		if err := openStore().Clear(state); err != nil {
			return err
		}
		ui.Success("%s plan cleared", state.Label())
		return nil
	},
}

var applyCmd = &cobra.Command{
	Use:   "apply <plan-guid>",
	Short: "Activate a plan now without saving it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := plan.ParseID(args[0])
		if err != nil {
			return err
		}

		if api := runningInstance(cmd.Context()); api != nil {
			if _, err := api.Activate(cmd.Context(), id); err != nil {
				return err
			}
			ui.Success("Activated %s %s", id, ui.Dim("(via running instance)"))
			return nil
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.CommandTimeout)
		defer cancel()
		sw := plan.NewSwitcher(executor.New(cfg.CommandTimeout), planOptions())
		if err := sw.Activate(ctx, id); err != nil {
			return err
		}
		ui.Success("Activated %s", id)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the power source and preferences of the running instance",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		api := runningInstance(cmd.Context())
		if api == nil {
			return fmt.Errorf("no volt instance answering at %q", cfg.StatusAddr)
		}
		st, err := api.Status(cmd.Context())
		if err != nil {
			return err
		}
		ui.Status(st)
		return nil
	},
}

func openStore() *prefs.Store {
	return prefs.Open(cfg.PrefsFile, prefs.Options{
		Rollback: cfg.RollbackOnPersistError,
		Logger:   logger.Named("prefs"),
	})
}

// printPreferences shows m alongside the current power source.
func printPreferences(m prefs.Map) {
	st, err := power.Current(power.NewReader())
	if err != nil {
		logger.Debug("reading power source", zap.Error(err))
	}
	ui.Status(protocol.Status{State: st.Key(), Label: st.Label(), Preferences: status.PreferenceMap(m)})
}

// runningInstance returns an API client when a volt instance answers on the
// configured status address.
func runningInstance(ctx context.Context) *client.API {
	if cfg.StatusAddr == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	api := client.NewAPI(cfg.StatusAddr)
	if err := api.Health(ctx); err != nil {
		logger.Debug("no running instance", zap.String("addr", cfg.StatusAddr), zap.Error(err))
		return nil
	}
	return api
}
