// Package commands implements nfs41daemon's CLI commands.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "nfs41daemon",
	Short: "NFSv4.1 user-space open-state and OPEN/CLOSE protocol engine",
	Long: `nfs41daemon turns the kernel client's CREATE-style open/close upcalls
into NFSv4.1 OPEN/CLOSE compounds, tracking every open's stateid,
delegation, and byte-range locks for the lifetime of the handle.

Use "nfs41daemon [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command; called once from main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/nfs41daemon/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(startCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
