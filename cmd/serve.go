/*
Copyright © 2026 James Lawson (jpl-au) <hello@caelisco.net>
*/

// serve.go defines the serve command: open the store, run migrations, and
// block serving the HTTP API.

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jpl-au/scribe/internal/config"
	"github.com/jpl-au/scribe/internal/log"
	"github.com/jpl-au/scribe/internal/server"
	"github.com/jpl-au/scribe/internal/store"
	"github.com/jpl-au/scribe/internal/transcript"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the transcript HTTP API",
	Long:  `Opens the SQLite store under the configured data directory, applies schema migrations, and serves the /transcripts JSON API until interrupted.`,
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

		// Audit logging is best-effort; a failure must not block serving.
		if err := log.Open(cfg.DataDirPath()); err != nil {
			fmt.Fprintf(os.Stderr, "warning: audit log unavailable: %v\n", err)
		}
		defer log.Close()

		svc := transcript.NewService(st, cfg)
		srv := server.New(svc)

		fmt.Fprintf(os.Stderr, "scribe listening on %s (data: %s)\n", cfg.Addr(), cfg.DataDirPath())
		return srv.ListenAndServe(cfg.Addr())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
