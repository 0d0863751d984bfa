// words.go manages the transcript_words mirror table. Rows are owned by the
// version that created them: the only writers are that version's save and the
// explicit migrate-words admin path.

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// ReplaceWordRows deletes then batch-inserts per-word rows for (doc, version).
// Newline tokens are not materialized; they only increment the segment index.
func (s *SQLiteStore) ReplaceWordRows(ctx context.Context, tx *sql.Tx, doc string, version int, words []Token) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM transcript_words WHERE file_path = ? AND version = ?`, doc, version); err != nil {
		return fmt.Errorf("clear word rows %s v%d: %w", doc, version, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transcript_words
			(file_path, version, segment_index, word_index, word, start_time, end_time, probability)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare word insert: %w", err)
	}
	defer stmt.Close()

	seg := 0
	for wi, tok := range words {
		if tok.IsNewline() {
			seg++
			continue
		}
		if _, err := stmt.ExecContext(ctx, doc, version, seg, wi, tok.Word, tok.Start, tok.End, tok.Probability); err != nil {
			return fmt.Errorf("insert word row %s v%d wi=%d: %w", doc, version, wi, err)
		}
	}
	return nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// WordRows returns per-word rows for (doc, version), optionally restricted to
// a segment window [startSeg, endSeg], ordered by word_index.
func (s *SQLiteStore) WordRows(ctx context.Context, doc string, version, startSeg, endSeg int) ([]WordRow, error) {
	return queryWordRows(ctx, s.db, doc, version, startSeg, endSeg)
}

// WordRowsTx is WordRows inside an open transaction, so a save can normalize
// the rows it just wrote before committing them.
func (s *SQLiteStore) WordRowsTx(ctx context.Context, tx *sql.Tx, doc string, version, startSeg, endSeg int) ([]WordRow, error) {
	return queryWordRows(ctx, tx, doc, version, startSeg, endSeg)
}

func queryWordRows(ctx context.Context, q querier, doc string, version, startSeg, endSeg int) ([]WordRow, error) {
	query := `
		SELECT segment_index, word_index, word, start_time, end_time, probability
		FROM transcript_words
		WHERE file_path = ? AND version = ?`
	args := []any{doc, version}
	if startSeg >= 0 {
		query += ` AND segment_index >= ? AND segment_index <= ?`
		args = append(args, startSeg, endSeg)
	}
	query += ` ORDER BY word_index ASC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query word rows %s v%d: %w", doc, version, err)
	}
	defer rows.Close()

	var out []WordRow
	for rows.Next() {
		r := WordRow{Doc: doc, Version: version}
		var start, end, prob sql.NullFloat64
		if err := rows.Scan(&r.SegmentIndex, &r.WordIndex, &r.Word, &start, &end, &prob); err != nil {
			return nil, fmt.Errorf("scan word row: %w", err)
		}
		if start.Valid {
			r.Start = &start.Float64
		}
		if end.Valid {
			r.End = &end.Float64
		}
		if prob.Valid {
			r.Probability = &prob.Float64
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AllWordRows returns every per-word row of a version.
func (s *SQLiteStore) AllWordRows(ctx context.Context, doc string, version int) ([]WordRow, error) {
	return s.WordRows(ctx, doc, version, -1, -1)
}

// ApplyTimingUpdates batch-rewrites start/end on per-word rows inside tx.
func (s *SQLiteStore) ApplyTimingUpdates(ctx context.Context, tx *sql.Tx, doc string, version int, updates []TimingUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		UPDATE transcript_words SET start_time = ?, end_time = ?
		WHERE file_path = ? AND version = ? AND word_index = ?`)
	if err != nil {
		return fmt.Errorf("prepare timing update: %w", err)
	}
	defer stmt.Close()

	for _, u := range updates {
		if _, err := stmt.ExecContext(ctx, u.Start, u.End, doc, version, u.WordIndex); err != nil {
			return fmt.Errorf("update timing %s v%d wi=%d: %w", doc, version, u.WordIndex, err)
		}
	}
	return nil
}

// BackfillProbabilities copies probability from the prior version's row with
// the same word_index wherever the new version's row lacks one.
func (s *SQLiteStore) BackfillProbabilities(ctx context.Context, tx *sql.Tx, doc string, version, prevVersion int) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE transcript_words SET probability = (
			SELECT p.probability FROM transcript_words p
			WHERE p.file_path = transcript_words.file_path
			  AND p.version = ?
			  AND p.word_index = transcript_words.word_index
		)
		WHERE file_path = ? AND version = ? AND probability IS NULL`,
		prevVersion, doc, version)
	if err != nil {
		return fmt.Errorf("backfill probabilities %s v%d: %w", doc, version, err)
	}
	return nil
}
