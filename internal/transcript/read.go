// read.go implements the read-side operations. All of them are thin over the
// store except Words, which normalizes timings on the way out.

package transcript

import (
	"context"

	"github.com/jpl-au/scribe/internal/normalize"
	"github.com/jpl-au/scribe/internal/store"
	"github.com/jpl-au/scribe/internal/validate"
)

// DefaultSegmentCount is how many segments Words returns when a segment is
// requested without an explicit count.
const DefaultSegmentCount = 50

// Latest returns the newest version of doc.
func (s *Service) Latest(ctx context.Context, doc string) (*store.Version, error) {
	doc, err := validate.Doc(doc)
	if err != nil {
		return nil, err
	}
	return s.store.Latest(ctx, doc)
}

// Get returns one stored version of doc.
func (s *Service) Get(ctx context.Context, doc string, version int) (*store.Version, error) {
	doc, err := validate.Doc(doc)
	if err != nil {
		return nil, err
	}
	return s.store.Get(ctx, doc, version)
}

// History returns the version lineage of doc.
func (s *Service) History(ctx context.Context, doc string) ([]store.HistoryEntry, error) {
	doc, err := validate.Doc(doc)
	if err != nil {
		return nil, err
	}
	return s.store.History(ctx, doc)
}

// Edits returns the raw edit-delta rows of doc.
func (s *Service) Edits(ctx context.Context, doc string) ([]store.Edit, error) {
	doc, err := validate.Doc(doc)
	if err != nil {
		return nil, err
	}
	return s.store.Edits(ctx, doc)
}

// Confirmations returns the confirmed ranges of (doc, version).
func (s *Service) Confirmations(ctx context.Context, doc string, version int) ([]store.Confirmation, error) {
	doc, err := validate.Doc(doc)
	if err != nil {
		return nil, err
	}
	return s.store.Confirmations(ctx, doc, version)
}

// ReplaceConfirmations replaces the confirmed ranges of (doc, version),
// gated by the version's stored hash.
func (s *Service) ReplaceConfirmations(ctx context.Context, doc string, version int, hash string, items []store.Confirmation) (int, error) {
	doc, err := validate.Doc(doc)
	if err != nil {
		return 0, err
	}
	if err := s.store.ReplaceConfirmations(ctx, doc, version, hash, items); err != nil {
		return 0, err
	}
	return len(items), nil
}

// Words returns the normalized token list of (doc, version), restricted to
// segments [segment, segment+count-1] when segment is non-negative. Versions
// without per-word rows are served from their stored JSON words instead.
func (s *Service) Words(ctx context.Context, doc string, version, segment, count int) ([]normalize.Token, error) {
	doc, err := validate.Doc(doc)
	if err != nil {
		return nil, err
	}
	if segment >= 0 && count <= 0 {
		count = DefaultSegmentCount
	}

	rows, err := s.store.WordRows(ctx, doc, version, segment, segment+count-1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		// Fallback for versions saved with the empty-words sentinel or
		// predating row materialization.
		v, err := s.store.Get(ctx, doc, version)
		if err != nil {
			return nil, err
		}
		rows = normalize.SliceRows(normalize.RowsFromTokens(v.Words), segment, count)
	}
	out, _ := normalize.FromRows(rows, s.cfg.MinDuration())
	return out, nil
}
