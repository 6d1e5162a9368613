// File path: cmd/triage/main.go
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jacobaguon-blip/support-triage/internal/common"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "triage",
	Short: "Checkpointed support ticket investigations",
	Long:  "triage runs support ticket investigations through agent phases and\noperator checkpoints, and serves the HTTP API used by the review UI.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		logger := common.Logger()
		if err := godotenv.Load(); err != nil {
			logger.Debug("triage: .env file not loaded", "error", err)
		} else {
			logger.Info("triage: environment loaded from .env")
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(versionsCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
