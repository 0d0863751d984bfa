package align

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArtifactLogSave(t *testing.T) {
	dir := t.TempDir()
	l := &ArtifactLog{Dir: dir}

	l.Save(context.Background(), "align", "show/ep1.mp3", 3, 1.234, 5.678,
		[]byte("wav-bytes"), []byte(`{"words":[]}`), "")

	wavs, err := filepath.Glob(filepath.Join(dir, "align_show__ep1.mp3_seg3_*.wav"))
	require.NoError(t, err)
	require.Len(t, wavs, 1)
	assert.Contains(t, wavs[0], "1.234-5.678")

	responses, err := filepath.Glob(filepath.Join(dir, "*.response.json"))
	require.NoError(t, err)
	assert.Len(t, responses, 1)
}

func TestArtifactLogDisabled(t *testing.T) {
	// Nil receiver and empty dir are both silent no-ops.
	var l *ArtifactLog
	l.Save(context.Background(), "align", "doc", 0, 0, 1, nil, nil, "")

	l = &ArtifactLog{}
	l.Save(context.Background(), "align", "doc", 0, 0, 1, nil, nil, "")
}

func TestArtifactLogNegativeSegment(t *testing.T) {
	dir := t.TempDir()
	l := &ArtifactLog{Dir: dir}
	l.Save(context.Background(), "prealign", "doc", -1, 0, 1, []byte("w"), nil, "")

	wavs, err := filepath.Glob(filepath.Join(dir, "prealign_doc_segNA_*.wav"))
	require.NoError(t, err)
	assert.Len(t, wavs, 1)
}
