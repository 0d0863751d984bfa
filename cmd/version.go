/*
Copyright © 2026 James Lawson (jpl-au) <hello@caelisco.net>
*/

// version.go defines the version command.

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpl-au/scribe/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show build version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprint(cmd.OutOrStdout(), version.Get().String())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
