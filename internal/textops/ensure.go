// ensure.go reconciles a client's token list with its submitted text.

package textops

import (
	"github.com/jpl-au/scribe/internal/store"
	"github.com/jpl-au/scribe/internal/timing"
)

// EnsureWordsMatchText returns a token list consistent with text. A list
// carrying any timing or probability is trusted verbatim; a list that still
// composes to the same structural text is kept; anything else is re-tokenized
// from text with timings carried over from the submitted tokens.
func EnsureWordsMatchText(text string, words []store.Token) []store.Token {
	for _, t := range words {
		if t.Start != nil || t.End != nil || t.Probability != nil {
			return words
		}
	}
	if RelaxedEqual(Compose(words), text) {
		return words
	}
	retok := Tokenize(text)
	return timing.Carry(timing.PrevFromTokens(words), retok)
}
