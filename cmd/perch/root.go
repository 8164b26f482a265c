// Package cli wires the perch command tree.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/perchbot/perch/internal/config"
	"github.com/perchbot/perch/internal/logging"
)

// Shared CLI flags (used across multiple command files)
var (
	verbose bool
)

// Cfg holds the loaded configuration (set by main)
var Cfg *config.Config

// SetupRootCmd configures the root command with all subcommands and flags
func SetupRootCmd(c *config.Config) *cobra.Command {
	Cfg = c

	rootCmd := &cobra.Command{
		Use:   "perch",
		Short: "Perch - personal chat assistant",
		Long: `Perch is a personal chat assistant with tool use and provider failover.

Just type 'perch' to start the gateway, or use 'perch chat' for a
one-shot exchange from the terminal.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if !verbose {
				logging.Disable()
			}
		},
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(ServeCmd())
	rootCmd.AddCommand(ChatCmd())
	rootCmd.AddCommand(UsageCmd())

	return rootCmd
}
