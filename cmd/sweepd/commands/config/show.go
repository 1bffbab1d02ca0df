package config

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/pagesweep/internal/cli/output"
	"github.com/marmos91/pagesweep/pkg/config"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current configuration",
	Long: `Display the effective configuration, defaults and environment overrides
applied. Output is YAML unless --output json is given.

Examples:
  sweepd config show
  sweepd config show --output json --config /etc/pagesweep/config.yaml`,
	RunE: runConfigShow,
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	format, _ := cmd.Flags().GetString("output")
	if f, err := output.ParseFormat(format); err == nil && f == output.FormatJSON {
		return output.PrintJSON(cmd.OutOrStdout(), cfg)
	}
	return output.PrintYAML(cmd.OutOrStdout(), cfg)
}
