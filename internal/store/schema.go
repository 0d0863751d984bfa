// schema.go manages the versioned SQLite schema.
//
// Migrations are tracked with PRAGMA user_version (current target: 3) and
// applied in order, so a database created by any prior release is brought
// forward by a single EnsureSchema call. Safe to invoke at every process
// start; a fully-migrated database is a handful of PRAGMA reads.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// targetSchemaVersion is the user_version a fully migrated database carries.
const targetSchemaVersion = 3

// EnsureSchema creates or upgrades the schema as needed. Idempotent.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	current, err := s.userVersion(ctx)
	if err != nil {
		return err
	}

	if current < 1 {
		if err := s.migrateV1(ctx); err != nil {
			return fmt.Errorf("schema v1: %w", err)
		}
		current = 1
	}
	if current < 2 {
		if err := s.migrateV2(ctx); err != nil {
			return fmt.Errorf("schema v2: %w", err)
		}
		current = 2
	}
	if current < 3 {
		if err := s.migrateV3(ctx); err != nil {
			return fmt.Errorf("schema v3: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) userVersion(ctx context.Context) (int, error) {
	var v int
	if err := s.db.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read user_version: %w", err)
	}
	return v, nil
}

func (s *SQLiteStore) setUserVersion(ctx context.Context, v int) error {
	// PRAGMA does not accept bound parameters.
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, v))
	return err
}

// migrateV1 creates the base tables and indexes.
func (s *SQLiteStore) migrateV1(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS transcripts (
			file_path   TEXT NOT NULL,
			version     INTEGER NOT NULL,
			base_sha256 TEXT NOT NULL,
			text        TEXT NOT NULL,
			words       TEXT NOT NULL,
			created_by  TEXT,
			created_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (file_path, version)
		)`,
		`CREATE TABLE IF NOT EXISTS transcript_edits (
			file_path      TEXT NOT NULL,
			parent_version INTEGER NOT NULL,
			child_version  INTEGER NOT NULL,
			dmp_patch      TEXT,
			token_ops      TEXT,
			created_at     TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (file_path, parent_version, child_version)
		)`,
		`CREATE TABLE IF NOT EXISTS transcript_confirmations (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			file_path    TEXT NOT NULL,
			version      INTEGER NOT NULL,
			base_sha256  TEXT NOT NULL,
			start_offset INTEGER NOT NULL,
			end_offset   INTEGER NOT NULL,
			prefix       TEXT,
			exact        TEXT,
			suffix       TEXT,
			created_at   TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS transcript_words (
			file_path     TEXT NOT NULL,
			version       INTEGER NOT NULL,
			segment_index INTEGER NOT NULL,
			word_index    INTEGER NOT NULL,
			word          TEXT NOT NULL,
			start_time    DOUBLE,
			end_time      DOUBLE,
			probability   DOUBLE,
			PRIMARY KEY (file_path, version, word_index)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transcripts_doc_ver ON transcripts(file_path, version)`,
		`CREATE INDEX IF NOT EXISTS idx_edits_doc_child ON transcript_edits(file_path, child_version)`,
		`CREATE INDEX IF NOT EXISTS idx_conf_doc_ver ON transcript_confirmations(file_path, version)`,
		`CREATE INDEX IF NOT EXISTS idx_tw_doc_ver ON transcript_words(file_path, version)`,
		`CREATE INDEX IF NOT EXISTS idx_tw_doc_ver_seg ON transcript_words(file_path, version, segment_index)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return s.setUserVersion(ctx, 1)
}

// migrateV2 backfills columns added after the first release.
func (s *SQLiteStore) migrateV2(ctx context.Context) error {
	backfills := map[string]string{
		"transcripts.created_by":       `ALTER TABLE transcripts ADD COLUMN created_by TEXT`,
		"transcript_edits.created_at":  `ALTER TABLE transcript_edits ADD COLUMN created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP`,
		"transcript_words.probability": `ALTER TABLE transcript_words ADD COLUMN probability DOUBLE`,
	}
	for col, stmt := range backfills {
		parts := strings.SplitN(col, ".", 2)
		exists, err := s.columnExists(ctx, parts[0], parts[1])
		if err != nil {
			return err
		}
		if !exists {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
	}
	return s.setUserVersion(ctx, 2)
}

// migrateV3 adds the single-row lock table used by TxImmediate.
func (s *SQLiteStore) migrateV3(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS write_reserve (
			id      INTEGER PRIMARY KEY CHECK (id = 1),
			touched INTEGER NOT NULL DEFAULT 0
		)`,
		`INSERT OR IGNORE INTO write_reserve (id, touched) VALUES (1, 0)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return s.setUserVersion(ctx, targetSchemaVersion)
}

func (s *SQLiteStore) columnExists(ctx context.Context, table, column string) (bool, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, err
		}
		if strings.EqualFold(name, column) {
			return true, nil
		}
	}
	return false, rows.Err()
}
