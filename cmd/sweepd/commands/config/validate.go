package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/pagesweep/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the sweepd configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  sweepd config validate

  # Validate specific config file
  sweepd config validate --config /etc/pagesweep/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	var warnings []string
	if !cfg.ControlPlane.HasJWTSecret() {
		warnings = append(warnings, "JWT secret not configured - mutating API endpoints are open")
	}
	if len(cfg.Filesystems) == 0 {
		warnings = append(warnings, "No filesystems configured - sweeps will have nothing to do")
	}
	for _, fs := range cfg.Filesystems {
		if fs.Store.Type == "memory" {
			warnings = append(warnings, fmt.Sprintf("Filesystem %q uses the memory store - pages are lost on unmount", fs.Name))
		}
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file: %s\n", displayPath)
	_, _ = fmt.Fprintln(out, "Validation: OK")

	if len(warnings) > 0 {
		_, _ = fmt.Fprintln(out, "\nWarnings:")
		for _, w := range warnings {
			_, _ = fmt.Fprintf(out, "  - %s\n", w)
		}
	}

	_, _ = fmt.Fprintf(out, "\nConfiguration summary:\n")
	_, _ = fmt.Fprintf(out, "  Filesystems:     %d\n", len(cfg.Filesystems))
	_, _ = fmt.Fprintf(out, "  API port:        %d\n", cfg.ControlPlane.Port)
	_, _ = fmt.Fprintf(out, "  Writeback:       %v (every %s)\n", cfg.Writeback.IsEnabled(), cfg.Writeback.Interval)
	_, _ = fmt.Fprintf(out, "  Log level:       %s\n", cfg.Logging.Level)

	return nil
}
