package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fp(v float64) *float64 { return &v }

// setupStore opens a fresh store in a temp directory with the schema applied.
func setupStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.sqlite"))
	require.NoError(t, err, "opening store")
	require.NoError(t, s.EnsureSchema(context.Background()), "applying schema")
	t.Cleanup(func() { s.Close() })
	return s
}

// insertVersion writes one version row inside an immediate transaction.
func insertVersion(t *testing.T, s *SQLiteStore, doc string, version int, hash, text string, words []Token) {
	t.Helper()
	wordsJSON, err := EncodeWords(words)
	require.NoError(t, err)
	err = s.TxImmediate(context.Background(), func(tx *sql.Tx) error {
		return s.InsertVersion(context.Background(), tx, doc, version, hash, text, wordsJSON, "tester")
	})
	require.NoError(t, err)
}

func TestEnsureSchemaIdempotent(t *testing.T) {
	s := setupStore(t)
	require.NoError(t, s.EnsureSchema(context.Background()))
	require.NoError(t, s.EnsureSchema(context.Background()))
}

func TestInsertAndGet(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	words := []Token{{Word: "hello", Start: fp(0), End: fp(0.5)}, {Word: "\n"}}
	insertVersion(t, s, "show/ep1", 1, "hash1", "hello\n", words)

	latest, err := s.Latest(ctx, "show/ep1")
	require.NoError(t, err)
	assert.Equal(t, 1, latest.Version)
	assert.Equal(t, "hash1", latest.BaseSHA256)
	assert.Equal(t, "hello\n", latest.Text)
	assert.Equal(t, "tester", latest.CreatedBy)
	require.Len(t, latest.Words, 2)
	assert.Equal(t, 0.5, *latest.Words[0].End)

	got, err := s.Get(ctx, "show/ep1", 1)
	require.NoError(t, err)
	assert.Equal(t, latest.BaseSHA256, got.BaseSHA256)

	_, err = s.Get(ctx, "show/ep1", 99)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Latest(ctx, "show/other")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInsertDuplicateVersion(t *testing.T) {
	s := setupStore(t)
	insertVersion(t, s, "doc", 1, "h1", "text", nil)

	err := s.TxImmediate(context.Background(), func(tx *sql.Tx) error {
		return s.InsertVersion(context.Background(), tx, "doc", 1, "h2", "other", "[]", "tester")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVersionExists)
}

func TestWordRows(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	insertVersion(t, s, "doc", 1, "h1", "one two\nthree\n", nil)

	words := []Token{
		{Word: "one", Start: fp(0), End: fp(0.5)},
		{Word: " "},
		{Word: "two", Start: fp(0.5), End: fp(1.0)},
		{Word: "\n"},
		{Word: "three", Start: fp(1.0), End: fp(1.5), Probability: fp(0.9)},
		{Word: "\n"},
	}
	err := s.TxImmediate(ctx, func(tx *sql.Tx) error {
		return s.ReplaceWordRows(ctx, tx, "doc", 1, words)
	})
	require.NoError(t, err)

	rows, err := s.AllWordRows(ctx, "doc", 1)
	require.NoError(t, err)
	require.Len(t, rows, 4, "newline tokens are not materialized")
	assert.Equal(t, 0, rows[0].SegmentIndex)
	assert.Equal(t, " ", rows[1].Word)
	assert.Equal(t, 1, rows[3].SegmentIndex)
	assert.Equal(t, 4, rows[3].WordIndex)
	require.NotNil(t, rows[3].Probability)
	assert.Equal(t, 0.9, *rows[3].Probability)

	seg1, err := s.WordRows(ctx, "doc", 1, 1, 1)
	require.NoError(t, err)
	require.Len(t, seg1, 1)
	assert.Equal(t, "three", seg1[0].Word)

	// Replace clears the old rows first.
	err = s.TxImmediate(ctx, func(tx *sql.Tx) error {
		return s.ReplaceWordRows(ctx, tx, "doc", 1, []Token{{Word: "only"}})
	})
	require.NoError(t, err)
	rows, err = s.AllWordRows(ctx, "doc", 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].Start)
}

func TestApplyTimingUpdates(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	insertVersion(t, s, "doc", 1, "h1", "one two", nil)

	words := []Token{{Word: "one"}, {Word: " "}, {Word: "two"}}
	err := s.TxImmediate(ctx, func(tx *sql.Tx) error {
		if err := s.ReplaceWordRows(ctx, tx, "doc", 1, words); err != nil {
			return err
		}
		return s.ApplyTimingUpdates(ctx, tx, "doc", 1, []TimingUpdate{
			{Start: 1.0, End: 1.5, WordIndex: 2},
		})
	})
	require.NoError(t, err)

	rows, err := s.AllWordRows(ctx, "doc", 1)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Nil(t, rows[0].Start)
	require.NotNil(t, rows[2].Start)
	assert.Equal(t, 1.0, *rows[2].Start)
	assert.Equal(t, 1.5, *rows[2].End)
}

func TestBackfillProbabilities(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	insertVersion(t, s, "doc", 1, "h1", "one", nil)
	insertVersion(t, s, "doc", 2, "h2", "one", nil)

	err := s.TxImmediate(ctx, func(tx *sql.Tx) error {
		if err := s.ReplaceWordRows(ctx, tx, "doc", 1, []Token{{Word: "one", Probability: fp(0.7)}}); err != nil {
			return err
		}
		if err := s.ReplaceWordRows(ctx, tx, "doc", 2, []Token{{Word: "one"}}); err != nil {
			return err
		}
		return s.BackfillProbabilities(ctx, tx, "doc", 2, 1)
	})
	require.NoError(t, err)

	rows, err := s.AllWordRows(ctx, "doc", 2)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].Probability)
	assert.Equal(t, 0.7, *rows[0].Probability)
}

func TestHistoryParentEdges(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	insertVersion(t, s, "doc", 1, "h1", "a", nil)
	insertVersion(t, s, "doc", 2, "h2", "b", nil)
	insertVersion(t, s, "doc", 3, "h3", "c", nil)

	patch := "--- \n+++ \n"
	err := s.TxImmediate(ctx, func(tx *sql.Tx) error {
		if err := s.UpsertEdit(ctx, tx, "doc", 1, 2, &patch, nil); err != nil {
			return err
		}
		if err := s.UpsertEdit(ctx, tx, "doc", 2, 3, &patch, nil); err != nil {
			return err
		}
		// Origin-replay edge must not shadow the lineage parent.
		return s.UpsertEdit(ctx, tx, "doc", 1, 3, &patch, nil)
	})
	require.NoError(t, err)

	history, err := s.History(ctx, "doc")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, 0, history[0].ParentVersion)
	assert.Equal(t, 1, history[1].ParentVersion)
	assert.Equal(t, 2, history[2].ParentVersion)
	assert.Equal(t, "h3", history[2].Hash)

	none, err := s.History(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestEditsAndAppendTokenOps(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	insertVersion(t, s, "doc", 1, "h1", "a", nil)
	insertVersion(t, s, "doc", 2, "h2", "b", nil)

	patch := "--- \n+++ \n@@ -1 +1 @@\n-a\n+b\n"
	ops := `{"type":"timing_adjust","items":[]}`
	err := s.TxImmediate(ctx, func(tx *sql.Tx) error {
		return s.UpsertEdit(ctx, tx, "doc", 1, 2, &patch, &ops)
	})
	require.NoError(t, err)

	edits, err := s.Edits(ctx, "doc")
	require.NoError(t, err)
	require.Len(t, edits, 1)
	assert.Equal(t, patch, edits[0].DmpPatch)
	require.NotNil(t, edits[0].TokenOps)
	assert.JSONEq(t, ops, *edits[0].TokenOps)

	// Appending to a single-object value promotes it to an array.
	block := json.RawMessage(`{"type":"timing_adjust","service":"silence-remover"}`)
	err = s.TxImmediate(ctx, func(tx *sql.Tx) error {
		return s.AppendTokenOps(ctx, tx, "doc", 1, 2, block)
	})
	require.NoError(t, err)

	edits, err = s.Edits(ctx, "doc")
	require.NoError(t, err)
	require.NotNil(t, edits[0].TokenOps)
	var arr []map[string]any
	require.NoError(t, json.Unmarshal([]byte(*edits[0].TokenOps), &arr))
	require.Len(t, arr, 2)
	assert.Equal(t, "silence-remover", arr[1]["service"])
	assert.Equal(t, patch, edits[0].DmpPatch, "appending token_ops leaves the patch alone")

	// Appending again extends the array.
	err = s.TxImmediate(ctx, func(tx *sql.Tx) error {
		return s.AppendTokenOps(ctx, tx, "doc", 1, 2, block)
	})
	require.NoError(t, err)
	edits, _ = s.Edits(ctx, "doc")
	arr = nil
	require.NoError(t, json.Unmarshal([]byte(*edits[0].TokenOps), &arr))
	assert.Len(t, arr, 3)

	// Appending to a missing edge creates it.
	err = s.TxImmediate(ctx, func(tx *sql.Tx) error {
		return s.AppendTokenOps(ctx, tx, "doc", 0, 1, block)
	})
	require.NoError(t, err)
	edits, _ = s.Edits(ctx, "doc")
	require.Len(t, edits, 2)
}

func TestConfirmations(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	insertVersion(t, s, "doc", 1, "goodhash", "hello world", nil)

	ranges := []Confirmation{
		{StartOffset: 6, EndOffset: 11, Prefix: "hello ", Exact: "world", Suffix: ""},
		{StartOffset: 0, EndOffset: 5, Exact: "hello"},
	}

	t.Run("hash gate", func(t *testing.T) {
		err := s.ReplaceConfirmations(ctx, "doc", 1, "stale", ranges)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrHashConflict)

		err = s.ReplaceConfirmations(ctx, "doc", 9, "goodhash", ranges)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("round trip ordered by offset", func(t *testing.T) {
		require.NoError(t, s.ReplaceConfirmations(ctx, "doc", 1, "goodhash", ranges))

		got, err := s.Confirmations(ctx, "doc", 1)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "hello", got[0].Exact)
		assert.Equal(t, "world", got[1].Exact)
	})

	t.Run("replace is wholesale", func(t *testing.T) {
		require.NoError(t, s.ReplaceConfirmations(ctx, "doc", 1, "goodhash", nil))
		got, err := s.Confirmations(ctx, "doc", 1)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestEncodeDecodeWords(t *testing.T) {
	enc, err := EncodeWords(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", enc, "nil encodes as empty array, never NULL")

	words := []Token{{Word: "a", Start: fp(1)}, {Word: "\n"}}
	enc, err = EncodeWords(words)
	require.NoError(t, err)
	dec, err := DecodeWords(enc)
	require.NoError(t, err)
	require.Len(t, dec, 2)
	assert.Equal(t, 1.0, *dec[0].Start)
	assert.Nil(t, dec[0].End)

	dec, err = DecodeWords("")
	require.NoError(t, err)
	assert.Nil(t, dec)
}
