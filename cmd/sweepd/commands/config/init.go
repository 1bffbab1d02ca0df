package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/pagesweep/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write a default configuration file with one in-memory filesystem and a
freshly generated JWT secret.

Examples:
  # Default location ($XDG_CONFIG_HOME/pagesweep/config.yaml)
  sweepd config init

  # Custom location, replacing an existing file
  sweepd config init --config /etc/pagesweep/config.yaml --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	var err error
	if configPath != "" {
		err = config.InitConfigToPath(configPath, initForce)
	} else {
		configPath, err = config.InitConfig(initForce)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file created at: %s\n", configPath)
	_, _ = fmt.Fprintln(out, "\nNext steps:")
	_, _ = fmt.Fprintln(out, "  1. Add your filesystems under \"filesystems:\"")
	_, _ = fmt.Fprintf(out, "  2. Start the daemon with: sweepd start --config %s\n", configPath)
	return nil
}
