// Package textops implements the text model shared by saves and reads:
// canonical form, token structure, and the structural comparisons that decide
// whether a client's token list still matches its text.
package textops

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strings"
	"unicode"

	"github.com/jpl-au/scribe/internal/store"
)

const nbsp = "\u00a0"

// bidiMarks are the directional formatting characters stripped during
// canonicalization. They are invisible but break hashing and diffing.
var bidiMarks = []string{
	"\u200e", "\u200f",
	"\u202a", "\u202b", "\u202c", "\u202d", "\u202e",
	"\u2066", "\u2067", "\u2068", "\u2069",
}

// Canonicalize rewrites text into the stored form: LF line endings, plain
// spaces for NBSP, no bidi formatting marks, no trailing horizontal
// whitespace on any line. Idempotent.
func Canonicalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, nbsp, " ")
	for _, m := range bidiMarks {
		text = strings.ReplaceAll(text, m, "")
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}

// SHA256Hex returns the lowercase hex SHA-256 of s.
func SHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Compose concatenates every token's word verbatim, whitespace tokens and
// newline markers included.
func Compose(words []store.Token) string {
	var b strings.Builder
	for _, t := range words {
		b.WriteString(t.Word)
	}
	return b.String()
}

// Tokenize splits text into the token list: each line becomes alternating
// runs of non-whitespace and whitespace, with a "\n" token between lines.
// A trailing "\n" token is emitted iff the input ends with a newline.
// Tokens carry no timings.
func Tokenize(text string) []store.Token {
	out := []store.Token{}
	lines := strings.Split(text, "\n")
	for li, line := range lines {
		if li > 0 {
			out = append(out, store.Token{Word: "\n"})
		}
		for _, run := range splitRuns(line) {
			out = append(out, store.Token{Word: run})
		}
	}
	// strings.Split leaves a final empty element for trailing newlines, which
	// the loop above already turned into a closing "\n" token.
	return out
}

// splitRuns breaks a single line into maximal runs of whitespace and
// non-whitespace characters, preserving every character.
func splitRuns(line string) []string {
	if line == "" {
		return nil
	}
	var runs []string
	var b strings.Builder
	var inSpace bool
	for i, r := range line {
		isSpace := unicode.IsSpace(r)
		if i > 0 && isSpace != inSpace {
			runs = append(runs, b.String())
			b.Reset()
		}
		b.WriteRune(r)
		inSpace = isSpace
	}
	runs = append(runs, b.String())
	return runs
}

// collapse maps a string onto its whitespace-insensitive form: NBSP becomes
// space, bidi marks vanish, whitespace runs (newlines included) collapse to a
// single space, and the result is trimmed.
func collapse(s string) string {
	s = strings.ReplaceAll(s, nbsp, " ")
	for _, m := range bidiMarks {
		s = strings.ReplaceAll(s, m, "")
	}
	return strings.Join(strings.Fields(s), " ")
}

// RelaxedEqual reports whether two strings are structurally the same text,
// ignoring line breaks and whitespace-run width.
func RelaxedEqual(a, b string) bool {
	return collapse(a) == collapse(b)
}

// Sanitize returns a cleaned copy of words: negative timings are clamped to
// zero, non-finite values are dropped, and an end before its start is dropped
// so inverted intervals never reach storage.
func Sanitize(words []store.Token) []store.Token {
	out := make([]store.Token, len(words))
	for i, t := range words {
		c := store.Token{Word: t.Word}
		c.Start = cleanFloat(t.Start)
		c.End = cleanFloat(t.End)
		c.Probability = cleanFloat(t.Probability)
		if c.Start != nil && c.End != nil && *c.End < *c.Start {
			c.End = nil
		}
		out[i] = c
	}
	return out
}

func cleanFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	if v < 0 {
		v = 0
	}
	return &v
}

// segmentStrings joins each segment's non-newline tokens with single spaces
// in collapsed form, producing one comparable string per segment.
func segmentStrings(words []store.Token) []string {
	segs := []string{}
	var parts []string
	flush := func() {
		segs = append(segs, strings.Join(parts, " "))
		parts = nil
	}
	for _, t := range words {
		if t.IsNewline() {
			flush()
			continue
		}
		if c := collapse(t.Word); c != "" {
			parts = append(parts, c)
		}
	}
	flush()
	return segs
}

// ChangedSegments compares previous and new words segment by segment and
// returns the ascending indices whose text differs. Segments present only in
// the new list are all changed.
func ChangedSegments(prevWords, newWords []store.Token) []int {
	prev := segmentStrings(prevWords)
	next := segmentStrings(newWords)
	var changed []int
	for i, s := range next {
		if i >= len(prev) || prev[i] != s {
			changed = append(changed, i)
		}
	}
	return changed
}
