// read.go implements version retrieval. These operations never modify data.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Latest returns the highest version of a document, or ErrNotFound when the
// document has never been saved.
func (s *SQLiteStore) Latest(ctx context.Context, doc string) (*Version, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT version, base_sha256, text, words, COALESCE(created_by, ''), COALESCE(created_at, '')
		FROM transcripts WHERE file_path = ?
		ORDER BY version DESC LIMIT 1`, doc)
	return s.scanVersion(row, doc)
}

// Get returns a specific historical version of a document.
func (s *SQLiteStore) Get(ctx context.Context, doc string, version int) (*Version, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT version, base_sha256, text, words, COALESCE(created_by, ''), COALESCE(created_at, '')
		FROM transcripts WHERE file_path = ? AND version = ?`, doc, version)
	return s.scanVersion(row, doc)
}

func (s *SQLiteStore) scanVersion(row *sql.Row, doc string) (*Version, error) {
	var v Version
	var wordsRaw string
	err := row.Scan(&v.Version, &v.BaseSHA256, &v.Text, &wordsRaw, &v.CreatedBy, &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan version: %w", err)
	}
	v.Doc = doc
	words, err := DecodeWords(wordsRaw)
	if err != nil {
		return nil, fmt.Errorf("decode words for %s v%d: %w", doc, v.Version, err)
	}
	if words == nil {
		words = []Token{}
	}
	v.Words = words
	return &v, nil
}

// History returns the version lineage for a document in ascending order.
// The parent version prefers the explicit immediate edge recorded in
// transcript_edits (parent = child - 1); absent that it falls back to
// version - 1, with 0 marking the first version.
func (s *SQLiteStore) History(ctx context.Context, doc string) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT version, base_sha256, COALESCE(created_at, ''), COALESCE(created_by, '')
		FROM transcripts WHERE file_path = ? ORDER BY version ASC`, doc)
	if err != nil {
		return nil, fmt.Errorf("list history for %s: %w", doc, err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.Version, &e.Hash, &e.CreatedAt, &e.CreatedBy); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}

	parentOf, err := s.parentEdges(ctx, doc)
	if err != nil {
		return nil, err
	}
	for i := range out {
		v := out[i].Version
		if pv, ok := parentOf[v]; ok {
			out[i].ParentVersion = pv
		} else if v <= 1 {
			out[i].ParentVersion = 0
		} else {
			out[i].ParentVersion = v - 1
		}
	}
	return out, nil
}

// parentEdges collects the immediate parent->child edges for a document.
// Only edges where parent = child - 1 are lineage; origin-replay edges
// (parent = 1) exist alongside them and must not shadow the real parent.
func (s *SQLiteStore) parentEdges(ctx context.Context, doc string) (map[int]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT parent_version, child_version FROM transcript_edits
		WHERE file_path = ? AND parent_version = child_version - 1`, doc)
	if err != nil {
		return nil, fmt.Errorf("list edit edges for %s: %w", doc, err)
	}
	defer rows.Close()

	edges := make(map[int]int)
	for rows.Next() {
		var pv, cv int
		if err := rows.Scan(&pv, &cv); err != nil {
			return nil, fmt.Errorf("scan edit edge: %w", err)
		}
		edges[cv] = pv
	}
	return edges, rows.Err()
}
