// save.go implements the conflict-gated save pipeline. The order matters and
// is load-bearing: gate, reconcile words with text, pre-align changed
// segments, carry timings, validate, then persist everything in one immediate
// transaction so readers never see a half-written version.

package transcript

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jpl-au/scribe/internal/align"
	"github.com/jpl-au/scribe/internal/log"
	"github.com/jpl-au/scribe/internal/normalize"
	"github.com/jpl-au/scribe/internal/store"
	"github.com/jpl-au/scribe/internal/textops"
	"github.com/jpl-au/scribe/internal/timing"
	"github.com/jpl-au/scribe/internal/validate"
)

// SaveRequest carries one save submission.
type SaveRequest struct {
	Doc           string
	ParentVersion *int
	ExpectedHash  string
	Text          string
	Words         []store.Token
	SegmentHint   *int
	Neighbors     int
	UserID        string
}

// SaveResult identifies the version a successful save created.
type SaveResult struct {
	Version    int    `json:"version"`
	BaseSHA256 string `json:"base_sha256"`
}

// tokenOpsBlock is the structured timing-adjust record stored in edit deltas.
type tokenOpsBlock struct {
	Type         string  `json:"type"`
	SegmentStart int     `json:"segment_start"`
	SegmentEnd   int     `json:"segment_end"`
	ClipStart    float64 `json:"clip_start"`
	ClipEnd      float64 `json:"clip_end"`
	Items        any     `json:"items"`
	Service      string  `json:"service"`
}

type prealignItem struct {
	WordIndex int     `json:"word_index"`
	NewStart  float64 `json:"new_start"`
	NewEnd    float64 `json:"new_end"`
}

// Save runs the full save pipeline. Exactly one of the three returns is
// meaningful: a result, a conflict payload, or an error.
func (s *Service) Save(ctx context.Context, req SaveRequest) (*SaveResult, *Conflict, error) {
	doc, err := validate.Doc(req.Doc)
	if err != nil {
		return nil, nil, err
	}
	if err := validate.Words(req.Words); err != nil {
		return nil, nil, err
	}
	words := textops.Sanitize(req.Words)
	clientEmpty := len(req.Words) == 0

	latest, err := s.store.Latest(ctx, doc)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, nil, err
	}

	if conflict := s.checkSaveConflict(ctx, doc, latest, req); conflict != nil {
		return nil, conflict, nil
	}

	newVersion := 1
	if latest != nil {
		newVersion = latest.Version + 1
	}

	words = textops.Sanitize(textops.EnsureWordsMatchText(req.Text, words))

	var alignUpdates []store.TimingUpdate
	var tokenOps *string
	if s.cfg.PrealignOnSave() && latest != nil {
		alignUpdates, tokenOps = s.prealign(ctx, doc, latest, words, req.SegmentHint, req.Neighbors)
	}

	words = s.carryFromPrior(ctx, doc, latest, words)
	if err := timing.Validate(words); err != nil {
		return nil, nil, err
	}

	storeText := textops.Canonicalize(textops.Compose(words))
	newHash := textops.SHA256Hex(storeText)
	wordsJSON, err := store.EncodeWords(words)
	if err != nil {
		return nil, nil, err
	}

	// Fetch the origin text before the transaction; it is immutable.
	var originText string
	if latest != nil && latest.Version > 1 {
		v1, err := s.store.Get(ctx, doc, 1)
		if err != nil {
			return nil, nil, err
		}
		originText = v1.Text
	}

	err = s.store.TxImmediate(ctx, func(tx *sql.Tx) error {
		if err := s.store.InsertVersion(ctx, tx, doc, newVersion, newHash, storeText, wordsJSON, req.UserID); err != nil {
			return err
		}
		if !clientEmpty {
			if err := s.store.ReplaceWordRows(ctx, tx, doc, newVersion, words); err != nil {
				return err
			}
			if err := s.store.ApplyTimingUpdates(ctx, tx, doc, newVersion, alignUpdates); err != nil {
				return err
			}
			if latest != nil {
				if err := s.store.BackfillProbabilities(ctx, tx, doc, newVersion, latest.Version); err != nil {
					return err
				}
			}
			rows, err := s.store.WordRowsTx(ctx, tx, doc, newVersion, -1, -1)
			if err != nil {
				return err
			}
			plan := normalize.PlanRows(rows, s.cfg.MinDuration())
			if err := s.store.ApplyTimingUpdates(ctx, tx, doc, newVersion, plan); err != nil {
				return err
			}
		}
		if latest != nil {
			diff := textops.Diff(latest.Text, storeText)
			if err := s.store.UpsertEdit(ctx, tx, doc, latest.Version, newVersion, &diff, tokenOps); err != nil {
				return err
			}
			// Origin-replay delta. For version 2 the parent edge already is
			// (1, 2); writing it again would null out token_ops.
			if latest.Version > 1 {
				originDiff := textops.Diff(originText, storeText)
				if err := s.store.UpsertEdit(ctx, tx, doc, 1, newVersion, &originDiff, nil); err != nil {
					return err
				}
			}
		}
		return nil
	})

	log.Event("transcripts:save", "save").
		User(req.UserID).
		Doc(doc).
		Version(versionOrZero(req.ParentVersion)).
		ResultVersion(newVersion).
		Detail("tokens", len(words)).
		Detail("align_updates", len(alignUpdates)).
		Write(err)
	if err != nil {
		return nil, nil, err
	}
	return &SaveResult{Version: newVersion, BaseSHA256: newHash}, nil, nil
}

func versionOrZero(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

// checkSaveConflict applies the gate in its documented order. A nil return
// means the save proceeds.
func (s *Service) checkSaveConflict(ctx context.Context, doc string, latest *store.Version, req SaveRequest) *Conflict {
	if latest == nil {
		if req.ParentVersion != nil && *req.ParentVersion != 0 {
			return &Conflict{Reason: ReasonInvalidParentForFirst}
		}
		return nil
	}
	if req.ParentVersion == nil {
		return &Conflict{Reason: ReasonMissingParent, Latest: latest}
	}
	if req.ExpectedHash == "" {
		return s.conflictWithDiffs(ctx, ReasonHashMissing, doc, latest, *req.ParentVersion, req.Text)
	}
	if *req.ParentVersion != latest.Version {
		return s.conflictWithDiffs(ctx, ReasonVersionConflict, doc, latest, *req.ParentVersion, req.Text)
	}
	if req.ExpectedHash != latest.BaseSHA256 {
		return s.conflictWithDiffs(ctx, ReasonHashConflict, doc, latest, *req.ParentVersion, req.Text)
	}
	return nil
}

// conflictWithDiffs builds the full 409 payload: the latest version, the
// parent the client claims, and both diffs a client needs to rebase.
func (s *Service) conflictWithDiffs(ctx context.Context, reason, doc string, latest *store.Version, parentVersion int, clientText string) *Conflict {
	parentText := ""
	if parent, err := s.store.Get(ctx, doc, parentVersion); err == nil {
		parentText = parent.Text
	}
	return &Conflict{
		Reason: reason,
		Latest: latest,
		Parent: &ParentInfo{
			Version:    parentVersion,
			BaseSHA256: textops.SHA256Hex(parentText),
			Text:       parentText,
		},
		DiffParentToLatest: textops.Diff(parentText, latest.Text),
		DiffParentToClient: textops.Diff(parentText, clientText),
	}
}

// carryFromPrior enriches words with timings from the latest version. The
// prior sequence prefers per-word rows; a version saved with the empty-words
// sentinel has none, so its JSON words serve instead.
func (s *Service) carryFromPrior(ctx context.Context, doc string, latest *store.Version, words []store.Token) []store.Token {
	if latest == nil || len(words) == 0 {
		return words
	}
	rows, err := s.store.AllWordRows(ctx, doc, latest.Version)
	if err == nil && len(rows) > 0 {
		return timing.Carry(timing.PrevFromRows(rows), words)
	}
	if len(latest.Words) > 0 {
		return timing.Carry(timing.PrevFromTokens(latest.Words), words)
	}
	return words
}

// prealign re-aligns every changed segment against the previous version's
// audio window before the save commits. Entirely best-effort: any failure
// drops the updates and the save proceeds with carried timings.
func (s *Service) prealign(ctx context.Context, doc string, latest *store.Version, words []store.Token, segmentHint *int, neighbors int) ([]store.TimingUpdate, *string) {
	changed := textops.ChangedSegments(latest.Words, words)
	if len(changed) == 0 && segmentHint != nil {
		changed = []int{*segmentHint}
	}
	if len(changed) == 0 {
		return nil, nil
	}
	n := s.cfg.ClampNeighbors(neighbors)

	merged := make(map[int]store.TimingUpdate)
	var order []int
	var tokenOps *string
	for _, seg := range changed {
		updates, block, err := s.prealignSegment(ctx, doc, latest.Version, seg, n, words)
		if err != nil {
			log.Event("transcripts:prealign", "align").
				Doc(doc).
				Version(latest.Version).
				Detail("segment", seg).
				Write(err)
			continue
		}
		for _, u := range updates {
			if _, seen := merged[u.WordIndex]; !seen {
				order = append(order, u.WordIndex)
			}
			merged[u.WordIndex] = u
		}
		if tokenOps == nil && block != nil {
			tokenOps = block
		}
	}

	out := make([]store.TimingUpdate, 0, len(order))
	for _, wi := range order {
		out = append(out, merged[wi])
	}
	return out, tokenOps
}

// prealignSegment aligns one segment window of the new words against the
// previous version's audio clip.
func (s *Service) prealignSegment(ctx context.Context, doc string, prevVersion, seg, neighbors int, words []store.Token) ([]store.TimingUpdate, *string, error) {
	startSeg := seg - neighbors
	if startSeg < 0 {
		startSeg = 0
	}
	endSeg := seg + neighbors

	prevRows, err := s.store.WordRows(ctx, doc, prevVersion, startSeg, endSeg)
	if err != nil {
		return nil, nil, err
	}
	clipStart, clipEnd, ok := clipFromRows(prevRows)
	if !ok {
		return nil, nil, fmt.Errorf("prealign-skip: no timings in segments %d-%d", startSeg, endSeg)
	}

	window, transcript := windowFromWords(words, startSeg, endSeg)
	if transcript == "" {
		return nil, nil, fmt.Errorf("prealign-skip: empty window %d-%d", startSeg, endSeg)
	}

	audioPath, err := align.ResolveAudio(s.cfg.AudioRoot(), doc)
	if err != nil {
		return nil, nil, err
	}
	wav, ss, to, err := s.aligner.ExtractClip(ctx, audioPath, clipStart, clipEnd)
	if err != nil {
		return nil, nil, err
	}
	respWords, raw, err := s.aligner.Align(ctx, wav, transcript)
	if err != nil {
		return nil, nil, err
	}
	s.artifacts.Save(ctx, "prealign", doc, seg, ss, to, wav, raw, audioPath)

	updates, matched := align.MapToUpdates(window, respWords, ss, s.cfg.MinDuration())
	if matched == 0 {
		return nil, nil, fmt.Errorf("prealign-skip: no tokens matched")
	}

	items := make([]prealignItem, len(updates))
	for i, u := range updates {
		items[i] = prealignItem{WordIndex: u.WordIndex, NewStart: u.Start, NewEnd: u.End}
	}
	block, err := json.Marshal(tokenOpsBlock{
		Type:         "timing_adjust",
		SegmentStart: startSeg,
		SegmentEnd:   endSeg,
		ClipStart:    ss,
		ClipEnd:      to,
		Items:        items,
		Service:      "silence-remover",
	})
	if err != nil {
		return nil, nil, err
	}
	blockStr := string(block)
	return updates, &blockStr, nil
}

// clipFromRows derives the audio window from the earliest start and the
// latest end among the rows.
func clipFromRows(rows []store.WordRow) (float64, float64, bool) {
	var clipStart, clipEnd *float64
	for _, r := range rows {
		if r.Start != nil && (clipStart == nil || *r.Start < *clipStart) {
			v := *r.Start
			clipStart = &v
		}
		if r.End != nil && (clipEnd == nil || *r.End > *clipEnd) {
			v := *r.End
			clipEnd = &v
		}
	}
	if clipStart == nil || clipEnd == nil || *clipEnd <= *clipStart {
		return 0, 0, false
	}
	return *clipStart, *clipEnd, true
}

// windowFromWords selects the non-newline tokens of segments
// [startSeg, endSeg] and builds the transcript sent to the aligner.
func windowFromWords(words []store.Token, startSeg, endSeg int) ([]align.WindowToken, string) {
	var window []align.WindowToken
	var parts []string
	seg := 0
	for wi, t := range words {
		if t.IsNewline() {
			seg++
			continue
		}
		if seg < startSeg || seg > endSeg {
			continue
		}
		window = append(window, align.WindowToken{WordIndex: wi, Text: t.Word, Segment: seg})
		parts = append(parts, t.Word)
	}
	return window, strings.TrimSpace(strings.Join(parts, " "))
}
