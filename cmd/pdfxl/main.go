// Package main is the entry point for the pdfxl CLI.
//
// pdfxl can be used either as a library (SDK) or as a standalone binary
// with optional YAML configuration. This CLI provides the standalone binary
// approach.
//
// Usage:
//
//	pdfxl convert --server http://localhost:5000 a.pdf b.pdf
//	pdfxl convert -c pdfxl.yaml reports/*.pdf
//	pdfxl validate -c pdfxl.yaml
//	pdfxl version
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "pdfxl",
	Short: "Convert PDF batches to structured Excel reports",
	Long: `pdfxl uploads a batch of PDF files to a conversion service, follows
the conversion until it finishes and downloads the generated Excel reports.

Quick start:
  1. Start a conversion service (or: go run ./example/cmd/mockserver)
  2. Run: pdfxl convert --server http://localhost:5000 invoice.pdf
  3. Find the reports in the current directory

Example config:
  server: ${PDFXL_SERVER:-http://localhost:5000}
  poll_interval: 1s
  presentation: bar:cards
  output_dir: ./reports`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// newLogger creates a JSON logger on stderr at the level named by the
// --log-level flag.
func newLogger(cmd *cobra.Command) (*slog.Logger, error) {
	raw, _ := cmd.Flags().GetString("log-level")

	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return nil, fmt.Errorf("invalid log level %q", raw)
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})), nil
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this pdfxl binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "pdfxl %s\n", version)
		fmt.Fprintf(cmd.OutOrStdout(), "  commit: %s\n", commit)
		fmt.Fprintf(cmd.OutOrStdout(), "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.AddCommand(versionCmd)
}
