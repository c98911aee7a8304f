package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/voltpower/volt/internal/client"
	"github.com/voltpower/volt/internal/protocol"
	"github.com/voltpower/volt/internal/ui"
)

func init() {
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow power source changes and plan activations live",
	Long: `Connects to the status feed of the running volt instance and prints
every power source change, activation and preference update.

The connection automatically reconnects with exponential backoff if interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.StatusAddr == "" {
			return fmt.Errorf("status server is disabled (status_addr is empty)")
		}

		ui.Banner(version)
		fmt.Fprintln(os.Stderr)
		ui.KeyValue("Feed", "ws://"+cfg.StatusAddr+"/ws")
		ui.Separator()
		ui.Info("Waiting for connection...")

		c := client.New(cfg.StatusAddr, func(f protocol.Frame) {
			switch f.Type {
			case protocol.TypeHello:
				ui.Success("Connected %s", ui.Dim("(volt "+f.Status.Version+")"))
				ui.Status(*f.Status)
			case protocol.TypeEvent:
				if f.Event != nil {
					ui.Event(*f.Event)
				}
			}
		}, logger.Named("watch"))
		c.OnDisconnect = func(err error) { ui.Error("Connection lost: %v", err) }
		c.OnReconnect = func() { ui.Info("Reconnecting...") }

		// Handle graceful shutdown
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		go func() {
			<-sigCh
			fmt.Fprintln(os.Stderr)
			ui.Warn("Shutting down...")
			c.Stop()
		}()

		return c.Run()
	},
}
