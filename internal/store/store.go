// Package store defines transcript persistence types and the SQLite store.
// Each save creates a new immutable version; per-word rows mirror the token
// list for range queries, and edit rows record parent->child deltas.
package store

import (
	"encoding/json"
	"errors"
	"strings"
)

var (
	// ErrNotFound indicates the requested document or version does not exist.
	// Callers should check for this to distinguish missing data from other errors.
	ErrNotFound = errors.New("version not found")
	// ErrVersionExists prevents overwriting an existing (doc, version) row.
	ErrVersionExists = errors.New("version already exists")
	// ErrHashConflict is returned when a gated write presents a stale base hash.
	ErrHashConflict = errors.New("base hash conflict")
)

// Token is one atomic unit of a transcript: a word, a whitespace run, or the
// segment boundary "\n". Optional fields are pointers so absent values survive
// a JSON round trip as absent rather than zero.
type Token struct {
	Word        string   `json:"word"`
	Start       *float64 `json:"start,omitempty"`
	End         *float64 `json:"end,omitempty"`
	Probability *float64 `json:"probability,omitempty"`
}

// IsNewline reports whether the token is a segment boundary.
func (t Token) IsNewline() bool { return t.Word == "\n" }

// IsSpace reports whether the token is whitespace-only (but not a boundary).
func (t Token) IsSpace() bool { return !t.IsNewline() && strings.TrimSpace(t.Word) == "" }

// Key returns the stripped form used for token matching.
func (t Token) Key() string { return strings.TrimSpace(t.Word) }

// Version is one immutable revision of a document's transcript.
type Version struct {
	Doc        string  `json:"-"`
	Version    int     `json:"version"`
	BaseSHA256 string  `json:"base_sha256"`
	Text       string  `json:"text"`
	Words      []Token `json:"words"`
	CreatedBy  string  `json:"created_by"`
	CreatedAt  string  `json:"created_at,omitempty"`
}

// WordRow is the normalized per-word mirror of a version's token list.
// Newline tokens are never materialized; they only advance SegmentIndex.
type WordRow struct {
	Doc          string
	Version      int
	SegmentIndex int
	WordIndex    int
	Word         string
	Start        *float64
	End          *float64
	Probability  *float64
}

// Edit records the delta between a parent and child version: a textual
// unified diff plus optional structured timing-adjust operations.
type Edit struct {
	ParentVersion int     `json:"parent_version"`
	ChildVersion  int     `json:"child_version"`
	DmpPatch      string  `json:"dmp_patch"`
	TokenOps      *string `json:"token_ops"`
}

// Confirmation is a user-attested character range over a specific version.
// Prefix/exact/suffix snippets enable relocation after later edits.
type Confirmation struct {
	ID          int64  `json:"id"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
	Prefix      string `json:"prefix"`
	Exact       string `json:"exact"`
	Suffix      string `json:"suffix"`
}

// HistoryEntry is one element of a document's version lineage.
type HistoryEntry struct {
	Version       int    `json:"version"`
	ParentVersion int    `json:"parent_version"`
	Hash          string `json:"hash"`
	CreatedAt     string `json:"created_at"`
	CreatedBy     string `json:"created_by"`
}

// TimingUpdate is a batched start/end rewrite for one per-word row.
type TimingUpdate struct {
	Start     float64
	End       float64
	WordIndex int
}

// EncodeWords serializes a token list for the transcripts.words column.
// A nil slice encodes as an empty array so the column is never NULL.
func EncodeWords(words []Token) (string, error) {
	if words == nil {
		words = []Token{}
	}
	b, err := json.Marshal(words)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeWords parses the transcripts.words column; empty input yields nil.
func DecodeWords(raw string) ([]Token, error) {
	if raw == "" {
		return nil, nil
	}
	var words []Token
	if err := json.Unmarshal([]byte(raw), &words); err != nil {
		return nil, err
	}
	return words, nil
}
