// Package normalize enforces the timing guarantees readers rely on: within a
// segment every token has end >= start and no token starts before its
// predecessor ends. The same rules run in two places: as a persisted repair
// plan after a save, and in memory when serving token lists.
package normalize

import (
	"github.com/jpl-au/scribe/internal/store"
)

// Token is the normalized read-side representation served to clients.
// Synthetic newline markers carry WordIndex -1.
type Token struct {
	Word         string   `json:"word"`
	Start        *float64 `json:"start,omitempty"`
	End          *float64 `json:"end,omitempty"`
	Probability  *float64 `json:"probability,omitempty"`
	SegmentIndex int      `json:"segment_index"`
	WordIndex    int      `json:"word_index"`
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// repair computes the normalized (start, end) for row i given the running
// previous end within the segment. Rows with neither endpoint are not
// repaired; fabricating timings for a wholly untimed token would make it look
// aligned when it never was.
func repair(rows []store.WordRow, i int, prevEnd *float64, minDur float64) (float64, float64, bool) {
	r := rows[i]
	if r.Start == nil && r.End == nil {
		return 0, 0, false
	}

	start := 0.0
	if r.Start != nil {
		start = *r.Start
	} else if prevEnd != nil {
		start = *prevEnd
	}
	if prevEnd != nil && start < *prevEnd {
		start = *prevEnd
	}

	var end float64
	switch {
	case r.End != nil && *r.End > start:
		end = *r.End
	case i+1 < len(rows) && rows[i+1].SegmentIndex == r.SegmentIndex &&
		rows[i+1].Start != nil && *rows[i+1].Start > start:
		end = *rows[i+1].Start
	default:
		end = start + minDur
	}
	return start, end, true
}

// PlanRows walks a version's per-word rows (ordered by word_index) and
// returns the timing updates needed to restore monotone, positive-duration
// intervals. Only rows whose stored values change are included.
func PlanRows(rows []store.WordRow, minDur float64) []store.TimingUpdate {
	var updates []store.TimingUpdate
	curSeg := -1
	var prevEnd *float64
	for i, r := range rows {
		if r.SegmentIndex != curSeg {
			curSeg = r.SegmentIndex
			prevEnd = nil
		}
		start, end, ok := repair(rows, i, prevEnd, minDur)
		if !ok {
			continue
		}
		if r.Start == nil || *r.Start != start || r.End == nil || *r.End != end {
			updates = append(updates, store.TimingUpdate{Start: start, End: end, WordIndex: r.WordIndex})
		}
		e := end
		prevEnd = &e
	}
	return updates
}

// FromRows renders per-word rows as normalized read-side tokens, inserting a
// synthetic newline marker at every segment boundary so the response retains
// line structure. Returns the tokens and how many carried timing.
func FromRows(rows []store.WordRow, minDur float64) ([]Token, int) {
	out := []Token{}
	if len(rows) == 0 {
		return out, 0
	}

	withTiming := 0
	curSeg := rows[0].SegmentIndex
	var prevEnd *float64
	for i, r := range rows {
		for curSeg < r.SegmentIndex {
			out = append(out, Token{
				Word:         "\n",
				Start:        cloneFloat(prevEnd),
				End:          cloneFloat(prevEnd),
				SegmentIndex: curSeg,
				WordIndex:    -1,
			})
			curSeg++
			prevEnd = nil
		}

		tok := Token{
			Word:         r.Word,
			Probability:  cloneFloat(r.Probability),
			SegmentIndex: r.SegmentIndex,
			WordIndex:    r.WordIndex,
		}
		if start, end, ok := repair(rows, i, prevEnd, minDur); ok {
			tok.Start = &start
			tok.End = &end
			prevEnd = &end
			withTiming++
		}
		out = append(out, tok)
	}
	return out, withTiming
}

// RowsFromTokens converts a stored JSON word list into per-word row form,
// assigning segment and word indices the same way materialization does.
func RowsFromTokens(words []store.Token) []store.WordRow {
	var rows []store.WordRow
	seg := 0
	for wi, t := range words {
		if t.IsNewline() {
			seg++
			continue
		}
		rows = append(rows, store.WordRow{
			SegmentIndex: seg,
			WordIndex:    wi,
			Word:         t.Word,
			Start:        cloneFloat(t.Start),
			End:          cloneFloat(t.End),
			Probability:  cloneFloat(t.Probability),
		})
	}
	return rows
}

// SliceRows restricts rows to segments [segment, segment+count-1]. A negative
// segment returns rows unchanged.
func SliceRows(rows []store.WordRow, segment, count int) []store.WordRow {
	if segment < 0 {
		return rows
	}
	last := segment + count - 1
	var out []store.WordRow
	for _, r := range rows {
		if r.SegmentIndex >= segment && r.SegmentIndex <= last {
			out = append(out, r)
		}
	}
	return out
}
