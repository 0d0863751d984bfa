/*
Copyright © 2026 James Lawson (jpl-au) <hello@caelisco.net>
*/

// migrate.go defines the migrate-words command, which rebuilds per-word rows
// for documents saved before row materialization existed.

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpl-au/scribe/internal/config"
	"github.com/jpl-au/scribe/internal/log"
	"github.com/jpl-au/scribe/internal/progress"
	"github.com/jpl-au/scribe/internal/store"
	"github.com/jpl-au/scribe/internal/transcript"
)

var (
	migrateDoc     string
	migrateVersion int
)

var migrateCmd = &cobra.Command{
	Use:   "migrate-words",
	Short: "Rebuild per-word rows from stored JSON words",
	Long:  `Rewrites the word-row table for a document from its stored JSON word lists. Versions without words get naive tokens synthesized from their text. Use --version to migrate a single version; the default migrates every version of the document.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		st, err := store.Open(cfg.SQLitePath())
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		if err := st.EnsureSchema(cmd.Context()); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}

		if err := log.Open(cfg.DataDirPath()); err == nil {
			defer log.Close()
		}

		var version *int
		if migrateVersion > 0 {
			version = &migrateVersion
		}

		svc := transcript.NewService(st, cfg)

		var prog *progress.Progress
		migrated, err := svc.MigrateWords(cmd.Context(), migrateDoc, version, func(done, total int) {
			if prog == nil {
				prog = progress.New("Migrating word rows", total)
			}
			prog.Increment()
			prog.Print()
		})
		if prog != nil {
			prog.Done()
		}
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Migrated %d version(s) of %s\n", migrated, migrateDoc)
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateDoc, "doc", "", "Document path (required)")
	migrateCmd.Flags().IntVar(&migrateVersion, "version", 0, "Migrate only this version (0 = all)")
	_ = migrateCmd.MarkFlagRequired("doc")
	rootCmd.AddCommand(migrateCmd)
}
