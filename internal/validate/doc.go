// Package validate provides input validation for the transcript layer.
//
// Design Decision: Validation happens at the service layer (not just the HTTP
// layer) because the service is the persistence boundary. Anyone with direct
// service access (CLI commands, tests, future code paths) must have their
// inputs validated.
package validate

import (
	"fmt"
	"strings"
)

// Doc validates a document identifier and returns the trimmed form.
//
// Validation rules:
//   - Empty identifiers rejected (would create ambiguous documents)
//   - Null bytes rejected (security: prevents injection into SQL and paths)
//   - Absolute paths rejected ("/", "\", "X:\") - docs are relative keys
//   - ".." path components rejected in both separator conventions
func Doc(doc string) (string, error) {
	d := strings.TrimSpace(doc)
	if d == "" {
		return "", fmt.Errorf("%w: empty doc", ErrInvalidDoc)
	}
	if strings.ContainsRune(d, 0) {
		return "", fmt.Errorf("%w: null byte in doc", ErrInvalidDoc)
	}
	if strings.HasPrefix(d, "/") || strings.HasPrefix(d, "\\") || isDrivePath(d) {
		return "", fmt.Errorf("%w: absolute path", ErrInvalidDoc)
	}
	for _, sep := range []string{"/", "\\"} {
		for _, part := range strings.Split(d, sep) {
			if part == ".." {
				return "", fmt.Errorf("%w: path traversal", ErrInvalidDoc)
			}
		}
	}
	return d, nil
}

// isDrivePath reports whether d starts with a Windows drive prefix like "C:\".
func isDrivePath(d string) bool {
	if len(d) < 3 {
		return false
	}
	c := d[0]
	letter := (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
	return letter && d[1] == ':' && (d[2] == '\\' || d[2] == '/')
}

// SafeName produces a filesystem-safe token from a doc identifier, used for
// alignment artifact file names. Separators become "__"; anything outside
// [alnum _ - . #] becomes "_".
func SafeName(doc string) string {
	s := strings.ReplaceAll(doc, "/", "__")
	s = strings.ReplaceAll(s, "\\", "__")
	s = strings.Join(strings.Fields(s), " ")
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '_' || r == '-' || r == '.' || r == '#':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}
