// Package server exposes the transcript engine over HTTP. Routing sits on
// gorilla/mux; every handler decodes its input, delegates to the transcript
// service, and encodes one JSON response.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/jpl-au/scribe/internal/align"
	"github.com/jpl-au/scribe/internal/store"
	"github.com/jpl-au/scribe/internal/timing"
	"github.com/jpl-au/scribe/internal/transcript"
	"github.com/jpl-au/scribe/internal/validate"
	"github.com/jpl-au/scribe/internal/version"
)

// Server is the HTTP front of the transcript service.
type Server struct {
	svc    *transcript.Service
	router *mux.Router
}

// New builds a Server with all routes registered.
func New(svc *transcript.Service) *Server {
	s := &Server{svc: svc, router: mux.NewRouter()}

	t := s.router.PathPrefix("/transcripts").Subrouter()
	t.HandleFunc("/latest", s.handleLatest).Methods(http.MethodGet)
	t.HandleFunc("/get", s.handleGet).Methods(http.MethodGet)
	t.HandleFunc("/words", s.handleWords).Methods(http.MethodGet)
	t.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	t.HandleFunc("/edits", s.handleEdits).Methods(http.MethodGet)
	t.HandleFunc("/confirmations", s.handleConfirmations).Methods(http.MethodGet)
	t.HandleFunc("/save", s.handleSave).Methods(http.MethodPost)
	t.HandleFunc("/align_segment", s.handleAlignSegment).Methods(http.MethodPost)
	t.HandleFunc("/confirmations/save", s.handleConfirmationsSave).Methods(http.MethodPost)
	t.HandleFunc("/migrate_words", s.handleMigrateWords).Methods(http.MethodPost)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	return s
}

// Router returns the handler, for tests and custom servers.
func (s *Server) Router() http.Handler {
	return s.router
}

// ListenAndServe blocks serving HTTP on addr.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

// writeJSON encodes v as the response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps service errors onto HTTP statuses: client input 400,
// unknown documents 404, gate failures 409, aligner trouble 502, everything
// else 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, validate.ErrInvalidDoc),
		errors.Is(err, validate.ErrInvalidWords),
		errors.Is(err, timing.ErrInvalidTiming):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrHashConflict),
		errors.Is(err, store.ErrVersionExists):
		status = http.StatusConflict
	case errors.Is(err, align.ErrUnavailable):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
