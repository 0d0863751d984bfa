// Package align talks to the external forced-alignment service: it slices a
// window of the source audio with ffmpeg, posts the clip plus transcript to
// the aligner, and maps the response back onto local word indices.
package align

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os/exec"
	"strings"
	"time"
)

// ErrUnavailable covers every way the alignment phase can fail without
// affecting the save that triggered it: ffmpeg errors, endpoint errors,
// timeouts, empty responses.
var ErrUnavailable = errors.New("aligner unavailable")

// alignTimeout bounds the HTTP call to the aligner. ffmpeg is not separately
// bounded; clip length is already limited by the neighbor window.
const alignTimeout = 60 * time.Second

// RespWord is one aligned word from the service. Times are relative to the
// clip start.
type RespWord struct {
	Word        string   `json:"word"`
	Start       float64  `json:"start"`
	End         float64  `json:"end"`
	Probability *float64 `json:"probability"`
}

type alignResponse struct {
	Words []RespWord `json:"words"`
}

// Client calls the forced-alignment endpoint.
type Client struct {
	Endpoint string
	Pad      float64
	http     *http.Client
}

// NewClient returns a Client for the given endpoint with the given clip
// padding in seconds.
func NewClient(endpoint string, pad float64) *Client {
	return &Client{
		Endpoint: endpoint,
		Pad:      pad,
		http:     &http.Client{Timeout: alignTimeout},
	}
}

// ExtractClip renders [clipStart-pad, clipEnd+pad] of the audio file as mono
// 16 kHz WAV, streamed over a pipe. Returns the WAV bytes and the actual
// clip bounds used.
func (c *Client) ExtractClip(ctx context.Context, audioPath string, clipStart, clipEnd float64) ([]byte, float64, float64, error) {
	ss := clipStart - c.Pad
	if ss < 0 {
		ss = 0
	}
	to := clipEnd + c.Pad

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-hide_banner", "-loglevel", "error",
		"-ss", fmt.Sprintf("%.3f", ss),
		"-to", fmt.Sprintf("%.3f", to),
		"-i", audioPath,
		"-ac", "1", "-ar", "16000",
		"-f", "wav", "pipe:1")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, 0, 0, fmt.Errorf("%w: ffmpeg: %s", ErrUnavailable, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), ss, to, nil
}

// Align posts the clip and its transcript to the aligner and returns the
// response words (whitespace-joined tokens split apart) along with the raw
// response body for artifact logging.
func (c *Client) Align(ctx context.Context, wav []byte, transcript string) ([]RespWord, []byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("audio", "clip.wav")
	if err != nil {
		return nil, nil, fmt.Errorf("build align request: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return nil, nil, fmt.Errorf("build align request: %w", err)
	}
	if err := mw.WriteField("transcript", transcript); err != nil {
		return nil, nil, fmt.Errorf("build align request: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, nil, fmt.Errorf("build align request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, &body)
	if err != nil {
		return nil, nil, fmt.Errorf("build align request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := raw
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, raw, fmt.Errorf("%w: endpoint %d: %s", ErrUnavailable, resp.StatusCode, snippet)
	}

	var parsed alignResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, raw, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	return Explode(parsed.Words), raw, nil
}

// Explode splits response tokens whose word contains internal whitespace,
// distributing the interval across the pieces proportional to character
// length. Pieces inherit the source token's probability.
func Explode(words []RespWord) []RespWord {
	out := make([]RespWord, 0, len(words))
	for _, w := range words {
		parts := strings.Fields(w.Word)
		if len(parts) <= 1 {
			out = append(out, w)
			continue
		}
		span := w.End - w.Start
		if span < 0 {
			span = 0
		}
		total := 0
		for _, p := range parts {
			total += len(p)
		}
		cur := w.Start
		for i, p := range parts {
			end := w.End
			if i < len(parts)-1 {
				end = cur + span*float64(len(p))/float64(total)
			}
			out = append(out, RespWord{Word: p, Start: cur, End: end, Probability: w.Probability})
			cur = end
		}
	}
	return out
}
