package main

import (
	"fmt"

	"github.com/jpalmerr/pdfxl/config"
	"github.com/spf13/cobra"
)

// validateCmd validates a config file without converting anything.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a pdfxl configuration file without contacting the server.

This command parses the YAML, expands environment variables, and validates
all fields. It's useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  pdfxl validate -c pdfxl.yaml
  pdfxl validate --config /etc/pdfxl/pdfxl.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	style := config.BuildStyle(cfg)
	dashboard := "disabled"
	if cfg.Dashboard.Port != 0 {
		dashboard = fmt.Sprintf("port %d", cfg.Dashboard.Port)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Server:        %s\n", cfg.Server)
	fmt.Fprintf(out, "  Poll interval: %s\n", cfg.PollInterval.Duration())
	fmt.Fprintf(out, "  Presentation:  %s:%s\n", style.Progress, style.Results)
	fmt.Fprintf(out, "  Output dir:    %s\n", cfg.OutputDir)
	fmt.Fprintf(out, "  Dashboard:     %s\n", dashboard)

	return nil
}
