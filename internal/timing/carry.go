// Package timing copies word-level timing metadata from a prior version onto
// a re-tokenized word list, and validates the result before it is stored.
package timing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jpl-au/scribe/internal/store"
)

// ErrInvalidTiming marks a token list whose timings are inverted or
// non-monotone. Saves carrying such timings are rejected rather than patched.
var ErrInvalidTiming = errors.New("invalid timing")

// lookahead bounds the streaming match window. Large enough to step over a
// reworded sentence, small enough that a pathological document does not turn
// every token into a full scan.
const lookahead = 128

type prevKind int

const (
	kindWord prevKind = iota
	kindSpace
	kindNewline
)

// PrevToken is one token of the prior version, pre-classified for matching.
type PrevToken struct {
	Kind        prevKind
	Key         string
	Start       *float64
	End         *float64
	Probability *float64
	used        bool
}

func classify(word string) (prevKind, string) {
	if word == "\n" {
		return kindNewline, ""
	}
	key := strings.TrimSpace(word)
	if key == "" {
		return kindSpace, ""
	}
	return kindWord, key
}

// PrevFromTokens builds the prior sequence from a version's JSON words.
func PrevFromTokens(words []store.Token) []PrevToken {
	out := make([]PrevToken, len(words))
	for i, t := range words {
		kind, key := classify(t.Word)
		out[i] = PrevToken{Kind: kind, Key: key, Start: t.Start, End: t.End, Probability: t.Probability}
	}
	return out
}

// PrevFromRows builds the prior sequence from a version's per-word rows.
// Rows carry no newline tokens, which is fine: newlines never match anyway.
func PrevFromRows(rows []store.WordRow) []PrevToken {
	out := make([]PrevToken, len(rows))
	for i, r := range rows {
		kind, key := classify(r.Word)
		out[i] = PrevToken{Kind: kind, Key: key, Start: r.Start, End: r.End, Probability: r.Probability}
	}
	return out
}

// lacks treats both a missing field and an exact 0.0 as absent, so a token
// the client zeroed out still picks up the prior version's value.
func lacks(f *float64) bool {
	return f == nil || *f == 0
}

func copyOf(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// Carry copies start, end and probability from matched prior tokens onto new
// tokens that lack them. Matching is left-to-right streaming: each new word
// token advances a cursor to the first unused prior word token with the same
// stripped text, looking ahead a bounded window first and rescanning the
// whole sequence on a miss, so a token moved earlier in the document still
// finds its prior self behind the cursor. Whitespace tokens never consume
// prior tokens and newline tokens never match.
func Carry(prev []PrevToken, words []store.Token) []store.Token {
	out := make([]store.Token, len(words))
	copy(out, words)

	cursor := 0
	for i := range out {
		kind, key := classify(out[i].Word)
		if kind != kindWord {
			continue
		}

		match := -1
		limit := cursor + lookahead
		if limit > len(prev) {
			limit = len(prev)
		}
		for j := cursor; j < limit; j++ {
			if !prev[j].used && prev[j].Kind == kindWord && prev[j].Key == key {
				match = j
				break
			}
		}
		if match < 0 {
			for j := 0; j < len(prev); j++ {
				if !prev[j].used && prev[j].Kind == kindWord && prev[j].Key == key {
					match = j
					break
				}
			}
		}
		if match < 0 {
			continue
		}

		p := &prev[match]
		p.used = true
		cursor = match + 1
		if lacks(out[i].Start) && p.Start != nil {
			out[i].Start = copyOf(p.Start)
		}
		if lacks(out[i].End) && p.End != nil {
			out[i].End = copyOf(p.End)
		}
		if lacks(out[i].Probability) && p.Probability != nil {
			out[i].Probability = copyOf(p.Probability)
		}
	}
	return out
}

// Validate rejects inverted or non-monotone timings. Only non-whitespace,
// non-newline tokens carrying both endpoints participate; the error names the
// first offending token.
func Validate(words []store.Token) error {
	var lastEnd *float64
	for i, t := range words {
		kind, _ := classify(t.Word)
		if kind != kindWord {
			continue
		}
		if t.Start == nil || t.End == nil {
			continue
		}
		if *t.End < *t.Start {
			return fmt.Errorf("%w: token %d (%q) has end %.3f before start %.3f",
				ErrInvalidTiming, i, t.Word, *t.End, *t.Start)
		}
		if lastEnd != nil && *t.Start < *lastEnd {
			return fmt.Errorf("%w: token %d (%q) starts at %.3f before previous end %.3f",
				ErrInvalidTiming, i, t.Word, *t.Start, *lastEnd)
		}
		lastEnd = t.End
	}
	return nil
}
