package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/voltpower/volt/internal/config"
	"github.com/voltpower/volt/internal/logging"
)

var (
	flagConfig     string
	flagPrefs      string
	flagLogLevel   string
	flagStatusAddr string

	cfg      *config.Config
	logger   *zap.Logger
	closeLog func()
)

var rootCmd = &cobra.Command{
	Use:   "volt",
	Short: "Switch power plans automatically when the power source changes",
	Long: `Volt sits in the system tray and activates the power plan you picked for
the current power source: one plan while plugged in, another on battery.

Run without arguments to start the tray. The other commands inspect and change
the same preferences from the command line; when a tray instance is running
they go through it.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}

		flags := config.Flags{
			ConfigPath: flagConfig,
			PrefsFile:  flagPrefs,
			LogLevel:   flagLogLevel,
		}
		if cmd.Flags().Changed("status-addr") {
			flags.StatusAddr = &flagStatusAddr
		}
		var err error
		cfg, err = config.Load(flags)
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}

		logger, closeLog, err = logging.New(cfg.Level(), cfg.LogFile)
		if err != nil {
			return err
		}
		logger.Debug("configuration loaded", zap.String("path", cfg.Path), zap.String("prefs", cfg.PrefsFile))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if closeLog != nil {
			closeLog()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default behavior: start the tray
		return runTray(cmd, false)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default: ~/.volt/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagPrefs, "prefs", "", "Preference file (default: ~/.volt/power_plans.json)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&flagStatusAddr, "status-addr", "", "Status server address; empty disables it (default: 127.0.0.1:7419)")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
