// confirmations.go manages reviewer-confirmed text ranges. Confirmations are
// anchored to one (version, hash) pair and replaced wholesale: a save against
// a stale hash is rejected rather than silently re-anchored.

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Confirmations returns the confirmed ranges recorded for (doc, version),
// ordered by start offset.
func (s *SQLiteStore) Confirmations(ctx context.Context, doc string, version int) ([]Confirmation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, start_offset, end_offset, COALESCE(prefix, ''), COALESCE(exact, ''), COALESCE(suffix, '')
		FROM transcript_confirmations
		WHERE file_path = ? AND version = ?
		ORDER BY start_offset ASC, id ASC`, doc, version)
	if err != nil {
		return nil, fmt.Errorf("list confirmations for %s v%d: %w", doc, version, err)
	}
	defer rows.Close()

	var out []Confirmation
	for rows.Next() {
		var c Confirmation
		if err := rows.Scan(&c.ID, &c.StartOffset, &c.EndOffset, &c.Prefix, &c.Exact, &c.Suffix); err != nil {
			return nil, fmt.Errorf("scan confirmation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ReplaceConfirmations deletes and rewrites the confirmed ranges for
// (doc, version), but only when hash matches the stored base_sha256 of that
// version. A missing version is ErrNotFound; a mismatched hash is
// ErrHashConflict.
func (s *SQLiteStore) ReplaceConfirmations(ctx context.Context, doc string, version int, hash string, ranges []Confirmation) error {
	return s.TxImmediate(ctx, func(tx *sql.Tx) error {
		var stored string
		err := tx.QueryRowContext(ctx, `
			SELECT base_sha256 FROM transcripts WHERE file_path = ? AND version = ?`,
			doc, version).Scan(&stored)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: %s v%d", ErrNotFound, doc, version)
		}
		if err != nil {
			return fmt.Errorf("read version hash %s v%d: %w", doc, version, err)
		}
		if stored != hash {
			return fmt.Errorf("%w: %s v%d", ErrHashConflict, doc, version)
		}

		if _, err := tx.ExecContext(ctx, `
			DELETE FROM transcript_confirmations WHERE file_path = ? AND version = ?`,
			doc, version); err != nil {
			return fmt.Errorf("clear confirmations %s v%d: %w", doc, version, err)
		}
		for _, c := range ranges {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO transcript_confirmations
					(file_path, version, base_sha256, start_offset, end_offset, prefix, exact, suffix)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				doc, version, hash, c.StartOffset, c.EndOffset, c.Prefix, c.Exact, c.Suffix); err != nil {
				return fmt.Errorf("insert confirmation %s v%d: %w", doc, version, err)
			}
		}
		return nil
	})
}
