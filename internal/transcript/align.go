// align.go implements on-demand re-alignment of a stored version's segment
// window, persisting the timing updates and the structured delta record.

package transcript

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"strings"

	"github.com/jpl-au/scribe/internal/align"
	"github.com/jpl-au/scribe/internal/log"
	"github.com/jpl-au/scribe/internal/store"
	"github.com/jpl-au/scribe/internal/validate"
)

// AlignRequest asks for re-alignment of one segment (plus neighbors) of a
// stored version. A nil Version targets the latest.
type AlignRequest struct {
	Doc       string
	Version   *int
	Segment   int
	Neighbors int
}

// AlignResult reports the outcome. A skipped window sets OK false with a
// reason; an aligned window reports how many tokens moved.
type AlignResult struct {
	OK            bool   `json:"ok"`
	Reason        string `json:"reason,omitempty"`
	ChangedCount  *int   `json:"changed_count,omitempty"`
	TotalCompared *int   `json:"total_compared,omitempty"`
}

// alignDiffItem is the per-token summary stored in token_ops and used to
// count meaningful changes.
type alignDiffItem struct {
	Word         string  `json:"word"`
	OldStart     float64 `json:"old_start"`
	OldEnd       float64 `json:"old_end"`
	NewStart     float64 `json:"new_start"`
	NewEnd       float64 `json:"new_end"`
	DeltaStart   float64 `json:"delta_start"`
	DeltaEnd     float64 `json:"delta_end"`
	SegmentIndex int     `json:"segment_index"`
}

func skip(reason string) *AlignResult {
	return &AlignResult{OK: false, Reason: reason}
}

// AlignSegment re-aligns the window around req.Segment using the version's
// own per-word rows for both the transcript and the clip bounds.
func (s *Service) AlignSegment(ctx context.Context, req AlignRequest) (*AlignResult, error) {
	doc, err := validate.Doc(req.Doc)
	if err != nil {
		return nil, err
	}

	version := 0
	if req.Version != nil {
		version = *req.Version
	} else {
		latest, err := s.store.Latest(ctx, doc)
		if err != nil {
			return nil, err
		}
		version = latest.Version
	}

	n := s.cfg.ClampNeighbors(req.Neighbors)
	startSeg := req.Segment - n
	if startSeg < 0 {
		startSeg = 0
	}
	endSeg := req.Segment + n

	rows, err := s.store.WordRows(ctx, doc, version, startSeg, endSeg)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return skip("no-words"), nil
	}

	clipStart, clipEnd, ok := clipFromRows(rows)
	if !ok {
		return skip("no-timings"), nil
	}

	audioPath, err := align.ResolveAudio(s.cfg.AudioRoot(), doc)
	if err != nil {
		if errors.Is(err, align.ErrAudioNotFound) {
			return skip("audio-not-found"), nil
		}
		return nil, err
	}

	wav, ss, to, err := s.aligner.ExtractClip(ctx, audioPath, clipStart, clipEnd)
	if err != nil {
		return nil, err
	}
	respWords, raw, err := s.aligner.Align(ctx, wav, windowTranscript(rows))
	if err != nil {
		return nil, err
	}
	s.artifacts.Save(ctx, "align", doc, req.Segment, ss, to, wav, raw, audioPath)

	window := make([]align.WindowToken, len(rows))
	oldTimes := make(map[int]store.WordRow, len(rows))
	for i, r := range rows {
		window[i] = align.WindowToken{WordIndex: r.WordIndex, Text: r.Word, Segment: r.SegmentIndex}
		oldTimes[r.WordIndex] = r
	}

	updates, matched := align.MapToUpdates(window, respWords, ss, s.cfg.MinDuration())
	diffs := make([]alignDiffItem, 0, len(updates))
	changed := 0
	for _, u := range updates {
		old := oldTimes[u.WordIndex]
		item := alignDiffItem{
			Word:         old.Word,
			OldStart:     floatOr(old.Start, floatVal(old.End)),
			OldEnd:       floatOr(old.End, floatVal(old.Start)),
			NewStart:     u.Start,
			NewEnd:       u.End,
			SegmentIndex: old.SegmentIndex,
		}
		item.DeltaStart = item.NewStart - item.OldStart
		item.DeltaEnd = item.NewEnd - item.OldEnd
		if math.Abs(item.DeltaStart) > 1e-3 || math.Abs(item.DeltaEnd) > 1e-3 {
			changed++
		}
		diffs = append(diffs, item)
	}

	if matched > 0 {
		block, err := json.Marshal(tokenOpsBlock{
			Type:         "timing_adjust",
			SegmentStart: startSeg,
			SegmentEnd:   endSeg,
			ClipStart:    ss,
			ClipEnd:      to,
			Items:        diffs,
			Service:      "silence-remover",
		})
		if err != nil {
			return nil, err
		}
		parentVersion := version - 1
		if parentVersion < 0 {
			parentVersion = 0
		}
		err = s.store.TxImmediate(ctx, func(tx *sql.Tx) error {
			if err := s.store.ApplyTimingUpdates(ctx, tx, doc, version, updates); err != nil {
				return err
			}
			return s.store.AppendTokenOps(ctx, tx, doc, parentVersion, version, block)
		})
		if err != nil {
			return nil, err
		}
	}

	log.Event("transcripts:align", "align").
		Doc(doc).
		Version(version).
		Detail("segment", req.Segment).
		Detail("matched", matched).
		Detail("changed", changed).
		Write(nil)

	total := len(diffs)
	return &AlignResult{OK: true, ChangedCount: &changed, TotalCompared: &total}, nil
}

// windowTranscript joins the window's words for the aligner request.
func windowTranscript(rows []store.WordRow) string {
	parts := make([]string, len(rows))
	for i, r := range rows {
		parts[i] = r.Word
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

func floatVal(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func floatOr(f *float64, fallback float64) float64 {
	if f == nil {
		return fallback
	}
	return *f
}
