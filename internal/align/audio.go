// audio.go resolves a document's audio file on disk.

package align

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// ErrAudioNotFound means no audio file exists for the document under the
// configured audio root.
var ErrAudioNotFound = errors.New("audio not found")

// pointerPattern matches the content of a blob pointer stub. Only this marker
// is dereferenced; any other small file is used as-is.
var pointerPattern = regexp.MustCompile(`\bsha:([a-fA-F0-9]{40,64})\b`)

// pointerMaxSize is the largest file considered a possible pointer stub.
const pointerMaxSize = 512

// ResolveAudio locates the audio file for doc under root and dereferences a
// blob pointer stub when the path turns out to be one.
func ResolveAudio(root, doc string) (string, error) {
	path := filepath.Join(root, filepath.FromSlash(doc))
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrAudioNotFound, doc)
	}
	return derefPointer(root, path, info.Size()), nil
}

// derefPointer substitutes <root>/blobs/<sha> for a tiny file holding a
// sha:<hex> marker. Anything that fails along the way keeps the original
// path; a stale pointer is an ffmpeg problem, not ours.
func derefPointer(root, path string, size int64) string {
	if size > pointerMaxSize {
		return path
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return path
	}
	m := pointerPattern.FindSubmatch(data)
	if m == nil {
		return path
	}
	candidate := filepath.Join(root, "blobs", string(m[1]))
	if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
		return candidate
	}
	return path
}
