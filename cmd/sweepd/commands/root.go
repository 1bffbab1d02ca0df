// Package commands implements the sweepd command line: the daemon itself
// and the client commands that drive a running daemon over its control API.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/pagesweep/cmd/sweepd/commands/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile      string
	serverURL    string
	authToken    string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "sweepd",
	Short: "pagesweep - page cache sweep daemon",
	Long: `sweepd keeps page caches in front of slow or remote backing stores and
lets operators drop them on demand, the way vm.drop_caches does for a kernel.

The daemon runs with "sweepd start". Every other command talks to a running
daemon through its control API.

Use "sweepd [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/pagesweep/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "control API URL (default: http://localhost:<controlplane.port>)")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", "", "bearer token (default: $"+EnvToken+", or minted from the config secret)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format (table|json|yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(dropCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(invalidateCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(filesystemsCmd)
	rootCmd.AddCommand(coherenceCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(config.Cmd)
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}
