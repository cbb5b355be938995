// Package commands implements nfs41ctl's CLI commands.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	debugAddr string
)

var rootCmd = &cobra.Command{
	Use:   "nfs41ctl",
	Short: "Operator CLI for nfs41daemon",
	Long: `nfs41ctl talks to a running nfs41daemon's debug API to inspect open
state and manage its configuration.

Use "nfs41ctl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command; called once from main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&debugAddr, "addr", "http://localhost:9090", "nfs41daemon debug API address")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(opensCmd)
	rootCmd.AddCommand(configCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
