package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpl-au/scribe/internal/config"
	"github.com/jpl-au/scribe/internal/server"
	"github.com/jpl-au/scribe/internal/store"
	"github.com/jpl-au/scribe/internal/transcript"
)

// setupServer returns a test HTTP server over a fresh service with save-time
// pre-alignment disabled.
func setupServer(t *testing.T) *httptest.Server {
	t.Helper()

	dataDir := t.TempDir()
	prealign := false
	cfg := &config.Config{
		DataDir:       &dataDir,
		AlignPrealign: &prealign,
	}

	st, err := store.Open(cfg.SQLitePath())
	require.NoError(t, err, "opening store")
	require.NoError(t, st.EnsureSchema(context.Background()), "applying schema")

	srv := httptest.NewServer(server.New(transcript.NewService(st, cfg)).Router())
	t.Cleanup(func() {
		srv.Close()
		st.Close()
	})
	return srv
}

func postJSON(t *testing.T, srv *httptest.Server, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	return resp, decodeObject(t, resp)
}

func getJSON(t *testing.T, srv *httptest.Server, path string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	return resp, decodeObject(t, resp)
}

func decodeObject(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func getArray(t *testing.T, srv *httptest.Server, path string) (*http.Response, []any) {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out []any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

// saveDoc creates version 1 of doc and returns its base hash.
func saveDoc(t *testing.T, srv *httptest.Server, doc string) string {
	t.Helper()
	resp, body := postJSON(t, srv, "/transcripts/save", map[string]any{
		"doc":  doc,
		"text": "hello world\nsecond line\n",
		"words": []map[string]any{
			{"word": "hello", "start": 0.0, "end": 0.5},
			{"word": " "},
			{"word": "world", "start": 0.5, "end": 1.0},
			{"word": "\n"},
			{"word": "second", "start": 1.0, "end": 1.4},
			{"word": " "},
			{"word": "line", "start": 1.4, "end": 1.8},
			{"word": "\n"},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, "save failed: %v", body)
	assert.Equal(t, float64(1), body["version"])
	hash, _ := body["base_sha256"].(string)
	require.NotEmpty(t, hash)
	return hash
}

func TestHealth(t *testing.T) {
	srv := setupServer(t)
	resp, body := getJSON(t, srv, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["version"])
}

func TestLatestUnknownDocIsEmptyObject(t *testing.T) {
	srv := setupServer(t)
	resp, body := getJSON(t, srv, "/transcripts/latest?doc=ghost")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body)
}

func TestSaveAndRead(t *testing.T) {
	srv := setupServer(t)
	hash := saveDoc(t, srv, "show/ep1")

	resp, body := getJSON(t, srv, "/transcripts/latest?doc=show/ep1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["version"])
	assert.Equal(t, hash, body["base_sha256"])
	assert.Equal(t, "hello world\nsecond line\n", body["text"])

	resp, body = getJSON(t, srv, "/transcripts/get?doc=show/ep1&version=1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, hash, body["base_sha256"])

	resp, _ = getJSON(t, srv, "/transcripts/get?doc=show/ep1&version=9")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, words := getArray(t, srv, "/transcripts/words?doc=show/ep1&version=1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, words)
	first := words[0].(map[string]any)
	assert.Equal(t, "hello", first["word"])
	assert.Equal(t, 0.5, first["end"])

	// Segment-restricted read.
	resp, words = getArray(t, srv, "/transcripts/words?doc=show/ep1&version=1&segment=1&count=1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, words, 3)
	assert.Equal(t, "second", words[0].(map[string]any)["word"])
}

func TestSaveConflictStatuses(t *testing.T) {
	srv := setupServer(t)

	t.Run("invalid parent for first is 400", func(t *testing.T) {
		resp, body := postJSON(t, srv, "/transcripts/save", map[string]any{
			"doc": "fresh", "text": "x", "parentVersion": 5,
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "invalid_parent_for_first", body["reason"])
	})

	hash := saveDoc(t, srv, "doc")

	t.Run("missing parent is 409", func(t *testing.T) {
		resp, body := postJSON(t, srv, "/transcripts/save", map[string]any{
			"doc": "doc", "text": "y",
		})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "missing_parent", body["reason"])
		latest := body["latest"].(map[string]any)
		assert.Equal(t, float64(1), latest["version"])
	})

	t.Run("stale hash is 409 with diffs", func(t *testing.T) {
		resp, body := postJSON(t, srv, "/transcripts/save", map[string]any{
			"doc": "doc", "text": "something else\n",
			"parentVersion": 1, "expected_base_sha256": "stale",
		})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "hash_conflict", body["reason"])
		assert.Contains(t, body["diff_parent_to_client"], "+something else")
	})

	t.Run("valid parent and hash advances", func(t *testing.T) {
		resp, body := postJSON(t, srv, "/transcripts/save", map[string]any{
			"doc": "doc", "text": "hello world\nsecond line edited\n",
			"parentVersion": 1, "expected_base_sha256": hash,
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, float64(2), body["version"])
	})
}

func TestInvalidDocIs400(t *testing.T) {
	srv := setupServer(t)
	resp, _ := getJSON(t, srv, "/transcripts/get?doc=..%2Fetc&version=1")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = postJSON(t, srv, "/transcripts/save", map[string]any{"doc": "", "text": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMalformedBodyIs400(t *testing.T) {
	srv := setupServer(t)
	resp, err := http.Post(srv.URL+"/transcripts/save", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHistoryAndEdits(t *testing.T) {
	srv := setupServer(t)
	hash := saveDoc(t, srv, "doc")
	resp, body := postJSON(t, srv, "/transcripts/save", map[string]any{
		"doc": "doc", "text": "hello world\nsecond line two\n",
		"parentVersion": 1, "expected_base_sha256": hash,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, "second save: %v", body)

	resp, history := getArray(t, srv, "/transcripts/history?doc=doc")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, history, 2)
	second := history[1].(map[string]any)
	assert.Equal(t, float64(2), second["version"])
	assert.Equal(t, float64(1), second["parent_version"])

	resp, edits := getArray(t, srv, "/transcripts/edits?doc=doc")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, edits, 1)
	edge := edits[0].(map[string]any)
	assert.Equal(t, float64(1), edge["parent_version"])
	assert.Equal(t, float64(2), edge["child_version"])
	assert.Contains(t, edge["dmp_patch"], "@@")

	resp, none := getArray(t, srv, "/transcripts/history?doc=ghost")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, none)
}

func TestConfirmationsEndpoints(t *testing.T) {
	srv := setupServer(t)
	hash := saveDoc(t, srv, "doc")

	items := []map[string]any{
		{"start_offset": 0, "end_offset": 5, "exact": "hello"},
	}

	resp, _ := postJSON(t, srv, "/transcripts/confirmations/save", map[string]any{
		"doc": "doc", "version": 1, "base_sha256": "wrong", "items": items,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body := postJSON(t, srv, "/transcripts/confirmations/save", map[string]any{
		"doc": "doc", "version": 1, "base_sha256": hash, "items": items,
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["count"])

	resp, _ = postJSON(t, srv, "/transcripts/confirmations/save", map[string]any{
		"doc": "doc", "base_sha256": hash, "items": items,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "missing version")

	resp, got := getArray(t, srv, "/transcripts/confirmations?doc=doc&version=1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, got, 1)
	assert.Equal(t, "hello", got[0].(map[string]any)["exact"])
}

func TestAlignSegmentEndpoint(t *testing.T) {
	srv := setupServer(t)
	saveDoc(t, srv, "doc")

	t.Run("missing segment is 400", func(t *testing.T) {
		resp, _ := postJSON(t, srv, "/transcripts/align_segment", map[string]any{"doc": "doc"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("no audio reports skip not error", func(t *testing.T) {
		resp, body := postJSON(t, srv, "/transcripts/align_segment", map[string]any{
			"doc": "doc", "segment": 0,
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, false, body["ok"])
		assert.Equal(t, "audio-not-found", body["reason"])
	})

	t.Run("unknown doc is 404", func(t *testing.T) {
		resp, _ := postJSON(t, srv, "/transcripts/align_segment", map[string]any{
			"doc": "ghost", "segment": 0,
		})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestMigrateWordsEndpoint(t *testing.T) {
	srv := setupServer(t)
	saveDoc(t, srv, "doc")

	resp, body := postJSON(t, srv, "/transcripts/migrate_words", map[string]any{"doc": "doc"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["migrated_versions"])
}

func TestSaveVersionsAreSequential(t *testing.T) {
	srv := setupServer(t)
	hash := saveDoc(t, srv, "doc")

	for v := 2; v <= 4; v++ {
		resp, body := postJSON(t, srv, "/transcripts/save", map[string]any{
			"doc":  "doc",
			"text": fmt.Sprintf("hello world\nsecond line v%d\n", v),
			"parentVersion": v - 1, "expected_base_sha256": hash,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode, "save v%d: %v", v, body)
		assert.Equal(t, float64(v), body["version"])
		hash = body["base_sha256"].(string)
	}
}
