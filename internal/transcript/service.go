// Package transcript orchestrates the transcript engine: the conflict-gated
// save pipeline, on-demand re-alignment, normalized reads and the word-row
// migration. It owns no SQL and no HTTP; storage lives in store and the
// transport in server.
package transcript

import (
	"github.com/jpl-au/scribe/internal/align"
	"github.com/jpl-au/scribe/internal/config"
	"github.com/jpl-au/scribe/internal/store"
)

// Service wires the storage layer to the alignment client under one
// configuration.
type Service struct {
	store     *store.SQLiteStore
	cfg       *config.Config
	aligner   *align.Client
	artifacts *align.ArtifactLog
}

// NewService builds a Service from an opened store and loaded configuration.
func NewService(st *store.SQLiteStore, cfg *config.Config) *Service {
	return &Service{
		store:   st,
		cfg:     cfg,
		aligner: align.NewClient(cfg.AlignURL(), cfg.ClipPadding()),
		artifacts: &align.ArtifactLog{
			Dir:    cfg.AudioLogPath(),
			Native: cfg.LogNativeClip(),
		},
	}
}

// Store exposes the underlying store for admin tooling.
func (s *Service) Store() *store.SQLiteStore {
	return s.store
}

// DefaultNeighbors is the configured neighbor window used when a request
// does not specify one.
func (s *Service) DefaultNeighbors() int {
	return s.cfg.Neighbors()
}

// ParentInfo describes the parent version in a conflict payload.
type ParentInfo struct {
	Version    int    `json:"version"`
	BaseSHA256 string `json:"base_sha256"`
	Text       string `json:"text"`
}

// Conflict is the structured payload a rejected save returns instead of a
// new version. Reason invalid_parent_for_first maps to a client error; every
// other reason is an optimistic-concurrency conflict.
type Conflict struct {
	Reason             string         `json:"reason"`
	Latest             *store.Version `json:"latest,omitempty"`
	Parent             *ParentInfo    `json:"parent,omitempty"`
	DiffParentToLatest string         `json:"diff_parent_to_latest,omitempty"`
	DiffParentToClient string         `json:"diff_parent_to_client,omitempty"`
}

const (
	ReasonInvalidParentForFirst = "invalid_parent_for_first"
	ReasonMissingParent         = "missing_parent"
	ReasonHashMissing           = "hash_missing"
	ReasonVersionConflict       = "version_conflict"
	ReasonHashConflict          = "hash_conflict"
)
