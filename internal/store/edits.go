// edits.go manages the transcript_edits delta table. Each row records how one
// version was derived from another: a text patch, token-level operations, or
// both. Deltas are advisory replay data; the transcripts table remains the
// source of truth.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// UpsertEdit records or replaces the delta for a (parent, child) edge.
// dmpPatch and tokenOps may each be nil to leave that side empty.
func (s *SQLiteStore) UpsertEdit(ctx context.Context, tx *sql.Tx, doc string, parent, child int, dmpPatch, tokenOps *string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO transcript_edits (file_path, parent_version, child_version, dmp_patch, token_ops)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (file_path, parent_version, child_version)
		DO UPDATE SET dmp_patch = excluded.dmp_patch, token_ops = excluded.token_ops`,
		doc, parent, child, dmpPatch, tokenOps)
	if err != nil {
		return fmt.Errorf("upsert edit %s %d->%d: %w", doc, parent, child, err)
	}
	return nil
}

// Edits returns all recorded deltas for a document, ordered by child then
// parent version.
func (s *SQLiteStore) Edits(ctx context.Context, doc string) ([]Edit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT parent_version, child_version, COALESCE(dmp_patch, ''), token_ops
		FROM transcript_edits WHERE file_path = ?
		ORDER BY child_version ASC, parent_version ASC`, doc)
	if err != nil {
		return nil, fmt.Errorf("list edits for %s: %w", doc, err)
	}
	defer rows.Close()

	var out []Edit
	for rows.Next() {
		var e Edit
		if err := rows.Scan(&e.ParentVersion, &e.ChildVersion, &e.DmpPatch, &e.TokenOps); err != nil {
			return nil, fmt.Errorf("scan edit: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// AppendTokenOps appends a block to the token_ops JSON of the (parent, child)
// edge, creating the edge when it does not exist yet. The stored value may be
// a single object (as written by save) or an array from earlier appends; the
// result is always an array. Read-modify-write: callers must run this inside
// an immediate transaction.
func (s *SQLiteStore) AppendTokenOps(ctx context.Context, tx *sql.Tx, doc string, parent, child int, block json.RawMessage) error {
	var existing sql.NullString
	err := tx.QueryRowContext(ctx, `
		SELECT token_ops FROM transcript_edits
		WHERE file_path = ? AND parent_version = ? AND child_version = ?`,
		doc, parent, child).Scan(&existing)
	exists := true
	if errors.Is(err, sql.ErrNoRows) {
		exists = false
	} else if err != nil {
		return fmt.Errorf("read token_ops %s %d->%d: %w", doc, parent, child, err)
	}

	var ops []json.RawMessage
	if existing.Valid && strings.TrimSpace(existing.String) != "" {
		raw := strings.TrimSpace(existing.String)
		if strings.HasPrefix(raw, "[") {
			if err := json.Unmarshal([]byte(raw), &ops); err != nil {
				ops = nil
			}
		} else {
			ops = []json.RawMessage{json.RawMessage(raw)}
		}
	}
	ops = append(ops, block)
	merged, err := json.Marshal(ops)
	if err != nil {
		return fmt.Errorf("encode token_ops %s %d->%d: %w", doc, parent, child, err)
	}

	if !exists {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO transcript_edits (file_path, parent_version, child_version, token_ops)
			VALUES (?, ?, ?, ?)`, doc, parent, child, string(merged))
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE transcript_edits SET token_ops = ?
			WHERE file_path = ? AND parent_version = ? AND child_version = ?`,
			string(merged), doc, parent, child)
	}
	if err != nil {
		return fmt.Errorf("append token_ops %s %d->%d: %w", doc, parent, child, err)
	}
	return nil
}
