package align

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientAlign(t *testing.T) {
	var gotTranscript string
	var gotAudio []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotTranscript = r.FormValue("transcript")

		f, hdr, err := r.FormFile("audio")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "clip.wav", hdr.Filename)
		gotAudio, err = io.ReadAll(f)
		require.NoError(t, err)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"words":[{"word":"hello","start":0.1,"end":0.4},{"word":"big world","start":0.5,"end":1.3}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0.1)
	words, raw, err := c.Align(context.Background(), []byte("RIFF-fake-wav"), "hello big world")
	require.NoError(t, err)
	assert.Equal(t, "hello big world", gotTranscript)
	assert.Equal(t, []byte("RIFF-fake-wav"), gotAudio)
	assert.Contains(t, string(raw), `"words"`)

	// "big world" exploded into two tokens, split by character length.
	require.Len(t, words, 3)
	assert.Equal(t, "hello", words[0].Word)
	assert.Equal(t, "big", words[1].Word)
	assert.InDelta(t, 0.5, words[1].Start, 1e-9)
	assert.InDelta(t, 0.8, words[1].End, 1e-9)
	assert.Equal(t, "world", words[2].Word)
	assert.InDelta(t, 0.8, words[2].Start, 1e-9)
	assert.InDelta(t, 1.3, words[2].End, 1e-9)
}

func TestClientAlignEndpointError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0.1)
	_, _, err := c.Align(context.Background(), []byte("wav"), "text")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "503")
}

func TestClientAlignUnreachable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1/align", 0.1)
	_, _, err := c.Align(context.Background(), []byte("wav"), "text")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestClientAlignBadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0.1)
	_, raw, err := c.Align(context.Background(), []byte("wav"), "text")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, "not json", string(raw), "raw body still returned for artifact logging")
}

func TestExplode(t *testing.T) {
	p := 0.8
	out := Explode([]RespWord{
		{Word: "single", Start: 0, End: 1},
		{Word: "two parts", Start: 1, End: 2, Probability: &p},
	})
	require.Len(t, out, 3)
	assert.Equal(t, "single", out[0].Word)

	assert.Equal(t, "two", out[1].Word)
	assert.InDelta(t, 1.0, out[1].Start, 1e-9)
	assert.InDelta(t, 1.375, out[1].End, 1e-9, "3 of 8 characters")
	require.NotNil(t, out[1].Probability)
	assert.Equal(t, 0.8, *out[1].Probability)

	assert.Equal(t, "parts", out[2].Word)
	assert.InDelta(t, 2.0, out[2].End, 1e-9)
}
