package validate

import (
	"fmt"
	"strings"

	"github.com/jpl-au/scribe/internal/store"
)

// Words validates the structure of a client words payload. Timing fields are
// clamped elsewhere; this rejects tokens whose text can never be stored.
//
// Validation rules:
//   - Empty word text rejected (tokenization never produces it, and an empty
//     token would corrupt compose/diff round trips)
//   - Null bytes rejected (same injection concern as doc identifiers)
func Words(words []store.Token) error {
	for i, t := range words {
		if t.Word == "" {
			return fmt.Errorf("%w: token %d has empty word", ErrInvalidWords, i)
		}
		if strings.ContainsRune(t.Word, 0) {
			return fmt.Errorf("%w: token %d contains null byte", ErrInvalidWords, i)
		}
	}
	return nil
}
