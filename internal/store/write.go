// write.go implements version creation. All writes create new versions
// rather than updating in place - versions are append-only and never
// rewritten, which is what makes the conflict gate trustworthy.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// InsertVersion writes a new transcript row inside tx. Fails with
// ErrVersionExists when (doc, version) is already present; the caller decides
// the version number under the gate, so a duplicate means a concurrent save
// won the race.
func (s *SQLiteStore) InsertVersion(ctx context.Context, tx *sql.Tx, doc string, version int, hash, text, wordsJSON, userID string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO transcripts (file_path, version, base_sha256, text, words, created_by)
		VALUES (?, ?, ?, ?, ?, ?)`,
		doc, version, hash, text, wordsJSON, userID)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") ||
			strings.Contains(err.Error(), "constraint failed") {
			return fmt.Errorf("%w: %s v%d", ErrVersionExists, doc, version)
		}
		return fmt.Errorf("insert version %s v%d: %w", doc, version, err)
	}
	return nil
}
