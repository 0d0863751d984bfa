// artifacts.go writes debug artifacts for each alignment call. Everything in
// here is best-effort: a failed artifact write never fails the alignment.

package align

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/jpl-au/scribe/internal/validate"
)

// ArtifactLog persists the clip and raw aligner response of each call under
// a log directory, optionally alongside an un-resampled clip of the source
// audio for listening checks.
type ArtifactLog struct {
	Dir    string
	Native bool
}

// Save writes the artifacts for one alignment call: the resampled clip as
// {kind}_{doc}_seg{N}_{ts}_{uid}_{ss}-{to}.wav, the response body next to it
// as .response.json, and when enabled a .native.wav cut from srcAudio.
func (l *ArtifactLog) Save(ctx context.Context, kind, doc string, seg int, ss, to float64, wav, response []byte, srcAudio string) {
	if l == nil || l.Dir == "" {
		return
	}
	if err := os.MkdirAll(l.Dir, 0755); err != nil {
		return
	}

	segPart := "segNA"
	if seg >= 0 {
		segPart = fmt.Sprintf("seg%d", seg)
	}
	base := fmt.Sprintf("%s_%s_%s_%s_%s_%.3f-%.3f",
		kind, validate.SafeName(doc), segPart,
		time.Now().Format("20060102-150405"),
		uuid.NewString()[:8], ss, to)

	_ = os.WriteFile(filepath.Join(l.Dir, base+".wav"), wav, 0644)
	if response != nil {
		_ = os.WriteFile(filepath.Join(l.Dir, base+".response.json"), response, 0644)
	}

	if l.Native && srcAudio != "" {
		cmd := exec.CommandContext(ctx, "ffmpeg",
			"-hide_banner", "-loglevel", "error",
			"-ss", fmt.Sprintf("%.3f", ss),
			"-to", fmt.Sprintf("%.3f", to),
			"-i", srcAudio,
			"-f", "wav", "-c:a", "pcm_s16le",
			filepath.Join(l.Dir, base+".native.wav"))
		_ = cmd.Run()
	}
}
