// Package cmd implements the clawlink command-line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/clawplaza/clawlink/internal/config"
)

var homeFlag string

var rootCmd = &cobra.Command{
	Use:   "clawlink",
	Short: "Remote-control relay for a tmux-hosted AI coding assistant",
	Long: `ClawLink notifies you over email, LINE or Telegram when your coding
assistant goes idle, and relays your replies back into its tmux pane —
including answering the interactive confirmation prompts it raises.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&homeFlag, "home", "", "state directory (default $CLAWLINK_HOME or ~/.clawlink)")
}

// home resolves the state directory for this invocation.
func home() string {
	if homeFlag != "" {
		return homeFlag
	}
	return config.Home()
}

// loadConfig loads and validates the operator configuration.
func loadConfig() (*config.Config, error) {
	return config.Load(home())
}

// Execute runs the CLI. Exit code 0 on success, 1 on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
