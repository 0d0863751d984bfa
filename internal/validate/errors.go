// Package errors for validation. Sentinel errors enable callers to map
// validation failures to HTTP 400 responses without string matching.
package validate

import "errors"

var (
	// ErrInvalidDoc indicates a document identifier failed safety checks.
	ErrInvalidDoc = errors.New("invalid doc")
	// ErrInvalidWords indicates a words payload was structurally malformed.
	ErrInvalidWords = errors.New("invalid words")
)
