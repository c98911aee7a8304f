package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var version = "0.3.0"

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of volt",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("volt v%s (%s/%s)\n", version, runtime.GOOS, runtime.GOARCH)
	},
}
