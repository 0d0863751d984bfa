// handlers.go implements the /transcripts route handlers.

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/jpl-au/scribe/internal/store"
	"github.com/jpl-au/scribe/internal/transcript"
)

// userID prefers the request body's user_id, then the X-User header. The
// value is opaque; authentication happens upstream.
func userID(r *http.Request, bodyUser string) string {
	if bodyUser != "" {
		return bodyUser
	}
	return r.Header.Get("X-User")
}

func queryInt(r *http.Request, key string) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body: " + err.Error()})
		return false
	}
	return true
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	doc := r.URL.Query().Get("doc")
	v, err := s.svc.Latest(r.Context(), doc)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	doc := r.URL.Query().Get("doc")
	version, ok := queryInt(r, "version")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing ?doc= and/or ?version="})
		return
	}
	v, err := s.svc.Get(r.Context(), doc, version)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleWords(w http.ResponseWriter, r *http.Request) {
	doc := r.URL.Query().Get("doc")
	version, ok := queryInt(r, "version")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing ?doc= and/or ?version="})
		return
	}
	segment := -1
	if seg, ok := queryInt(r, "segment"); ok {
		segment = seg
	}
	count := 0
	if c, ok := queryInt(r, "count"); ok {
		count = c
	}
	words, err := s.svc.Words(r.Context(), doc, version, segment, count)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, words)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.svc.History(r.Context(), r.URL.Query().Get("doc"))
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []store.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleEdits(w http.ResponseWriter, r *http.Request) {
	edits, err := s.svc.Edits(r.Context(), r.URL.Query().Get("doc"))
	if err != nil {
		writeError(w, err)
		return
	}
	if edits == nil {
		edits = []store.Edit{}
	}
	writeJSON(w, http.StatusOK, edits)
}

func (s *Server) handleConfirmations(w http.ResponseWriter, r *http.Request) {
	doc := r.URL.Query().Get("doc")
	version, ok := queryInt(r, "version")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing ?doc= and/or ?version="})
		return
	}
	items, err := s.svc.Confirmations(r.Context(), doc, version)
	if err != nil {
		writeError(w, err)
		return
	}
	if items == nil {
		items = []store.Confirmation{}
	}
	writeJSON(w, http.StatusOK, items)
}

type saveBody struct {
	Doc                string        `json:"doc"`
	ParentVersion      *int          `json:"parentVersion"`
	ExpectedBaseSHA256 string        `json:"expected_base_sha256"`
	Text               string        `json:"text"`
	Words              []store.Token `json:"words"`
	Segment            *int          `json:"segment"`
	Neighbors          *int          `json:"neighbors"`
	UserID             string        `json:"user_id"`
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var body saveBody
	if !decodeBody(w, r, &body) {
		return
	}
	neighbors := s.svc.DefaultNeighbors()
	if body.Neighbors != nil {
		neighbors = *body.Neighbors
	}
	result, conflict, err := s.svc.Save(r.Context(), transcript.SaveRequest{
		Doc:           body.Doc,
		ParentVersion: body.ParentVersion,
		ExpectedHash:  body.ExpectedBaseSHA256,
		Text:          body.Text,
		Words:         body.Words,
		SegmentHint:   body.Segment,
		Neighbors:     neighbors,
		UserID:        userID(r, body.UserID),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if conflict != nil {
		if conflict.Reason == transcript.ReasonInvalidParentForFirst {
			writeJSON(w, http.StatusBadRequest, conflict)
			return
		}
		writeJSON(w, http.StatusConflict, conflict)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type alignBody struct {
	Doc       string `json:"doc"`
	Version   *int   `json:"version"`
	Segment   *int   `json:"segment"`
	Neighbors *int   `json:"neighbors"`
}

func (s *Server) handleAlignSegment(w http.ResponseWriter, r *http.Request) {
	var body alignBody
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Segment == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing doc/segment"})
		return
	}
	neighbors := s.svc.DefaultNeighbors()
	if body.Neighbors != nil {
		neighbors = *body.Neighbors
	}
	result, err := s.svc.AlignSegment(r.Context(), transcript.AlignRequest{
		Doc:       body.Doc,
		Version:   body.Version,
		Segment:   *body.Segment,
		Neighbors: neighbors,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type confirmationsSaveBody struct {
	Doc        string               `json:"doc"`
	Version    *int                 `json:"version"`
	BaseSHA256 string               `json:"base_sha256"`
	Items      []store.Confirmation `json:"items"`
}

func (s *Server) handleConfirmationsSave(w http.ResponseWriter, r *http.Request) {
	var body confirmationsSaveBody
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Version == nil || body.BaseSHA256 == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing doc/version/base_sha256"})
		return
	}
	count, err := s.svc.ReplaceConfirmations(r.Context(), body.Doc, *body.Version, body.BaseSHA256, body.Items)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

type migrateBody struct {
	Doc     string `json:"doc"`
	Version *int   `json:"version"`
}

func (s *Server) handleMigrateWords(w http.ResponseWriter, r *http.Request) {
	var body migrateBody
	if !decodeBody(w, r, &body) {
		return
	}
	migrated, err := s.svc.MigrateWords(r.Context(), body.Doc, body.Version, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"migrated_versions": migrated})
}
