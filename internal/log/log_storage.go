// log_storage.go implements SQLite-based persistent audit logging.
//
// Separated from log.go to isolate database concerns. The main log.go provides
// the fluent API for building log entries, while this file handles persistence.
// Using SQLite enables structured filtering (by doc, by action, by outcome)
// that plain text logs cannot provide. The deployment field is a hash of the
// data directory so entries from different deployments sharing a log stay
// distinguishable without recording the raw path.
//
// Design: Errors during logging are silently ignored (best-effort). A save
// should succeed even if we can't record it in the audit log.

package log

import (
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/crypto/blake2b"
	_ "modernc.org/sqlite"
)

// Logger writes audit log entries to a SQLite database.
type Logger struct {
	db         *sql.DB
	deployment string
}

func (l *Logger) log(e Entry) {
	var detail *string
	if len(e.Detail) > 0 {
		if b, err := json.Marshal(e.Detail); err == nil {
			s := string(b)
			detail = &s
		}
	}

	success := 0
	if e.Success {
		success = 1
	}

	_, err := l.db.Exec(`
		INSERT INTO log (start, end, deployment, source, user, action, doc, version,
		                 result_version, success, error, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Start, e.End, l.deployment, e.Source, nilIfEmpty(e.User), e.Action,
		nilIfEmpty(e.Doc), nilIfZero(e.Version), nilIfZero(e.ResultVersion),
		success, nilIfEmpty(e.Error), detail,
	)
	if err != nil {
		// Best-effort logging: don't break main operation, but report failure
		_, _ = fmt.Fprintf(os.Stderr, "scribe: audit log write failed: %v\n", err)
	}
}

// hash creates a deployment identifier from the data directory path.
func hash(s string) string {
	h, err := blake2b.New(8, nil) // 64-bit = 16 hex chars
	if err != nil {
		// Should never happen with nil key, but don't silently ignore
		panic("blake2b.New failed: " + err.Error())
	}
	h.Write([]byte(s))
	return hex.EncodeToString(h.Sum(nil))
}

// migrate creates the log table if it doesn't exist. Safe for concurrent access.
func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS log (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			start          INTEGER NOT NULL,
			end            INTEGER NOT NULL,
			deployment     TEXT NOT NULL,
			source         TEXT NOT NULL,
			user           TEXT,
			action         TEXT NOT NULL,
			doc            TEXT,
			version        INTEGER,
			result_version INTEGER,
			success        INTEGER NOT NULL,
			error          TEXT,
			detail         TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_log_start ON log(start);
		CREATE INDEX IF NOT EXISTS idx_log_doc ON log(doc);
		CREATE INDEX IF NOT EXISTS idx_log_source ON log(source);
	`)
	return err
}

// nilIfEmpty returns nil for empty strings, reducing NULL checks in queries.
func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nilIfZero returns nil for zero values, indicating "no version" in queries.
func nilIfZero(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}
