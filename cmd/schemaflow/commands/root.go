// Package commands implements the schemaflow CLI.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	jsonOutput bool
)

// buildVersion is the CLI version string, set by Execute.
var buildVersion = "dev"

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	buildVersion = version
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "schemaflow",
		Short: "Schemaflow - Database Schema Refresh Orchestrator",
		Long: `Schemaflow refreshes a database schema from a source database into a
target database: export, transfer, drop, import, validate.

Features:
  - Direct host-to-host, object-store, and hybrid transfer strategies
  - Automatic fallback between transfer strategies
  - Benign no-op detection for idempotent re-runs
  - Rego-based destructive-operation policies
  - Persistent run history with per-phase diagnostics`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "schemaflow.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newRefreshCommand())
	rootCmd.AddCommand(newVerifyCommand())
	rootCmd.AddCommand(newRunsCommand())
	rootCmd.AddCommand(newPoliciesCommand())
	rootCmd.AddCommand(newValidateCommand())

	return rootCmd
}
