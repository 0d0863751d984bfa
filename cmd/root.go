/*
Copyright © 2026 James Lawson (jpl-au) <hello@caelisco.net>
*/

// root.go defines the root command and CLI execution entry point.
//
// Design: configuration is loaded lazily in each subcommand rather than in a
// PersistentPreRunE, because `scribe version` must work without a config file
// or data directory existing.

package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// configPath is the --config flag value, shared by all subcommands.
var configPath string

var rootCmd = &cobra.Command{
	Use:   "scribe",
	Short: "Versioned transcript store with timing-aware saves",
	Long:  `A versioned transcript editing backend: conflict-gated saves, word-level timing carry-over, forced re-alignment against an external aligner, and a JSON API over HTTP.`,
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

// Execute runs the root command. Exit code 1 indicates error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// RootCmd returns the root command for testing.
func RootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "scribe.yaml", "Path to the configuration file")
}
