package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/voltpower/volt/internal/app"
	"github.com/voltpower/volt/internal/ui"
)

var flagNoTray bool

func init() {
	runCmd.Flags().BoolVar(&flagNoTray, "no-tray", false, "Run without the tray icon (monitor and status server only)")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the tray and follow the power source",
	Long: `Starts the power source monitor and the tray menu. Each time the machine
switches between AC and battery, the plan saved for the new source is activated.

Pick the plan for each source from the tray menu. The local status server
(status_addr) exposes /status, /ws and /metrics while volt runs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTray(cmd, flagNoTray)
	},
}

func runTray(cmd *cobra.Command, headless bool) error {
	ui.Banner(version)

	a := app.New(cfg, logger, version)

	fmt.Fprintln(os.Stderr)
	ui.KeyValue("Power", a.Monitor.State().Label())
	ui.KeyValue("Prefs", cfg.PrefsFile)
	ui.KeyValue("Log", cfg.LogFile)
	if cfg.StatusAddr != "" {
		ui.KeyValue("Status", "http://"+cfg.StatusAddr)
	}
	ui.Separator()
	if headless {
		ui.Info("Following power source changes (Ctrl+C to stop)")
	} else {
		ui.Info("Tray started")
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr)
			ui.Warn("Shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := a.Run(ctx, !headless); err != nil {
		return err
	}
	ui.Success("Stopped")
	return nil
}
