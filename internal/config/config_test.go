package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultDataDir, cfg.DataDirPath())
	assert.Equal(t, DefaultListenAddr, cfg.Addr())
	assert.Equal(t, DefaultAlignEndpoint, cfg.AlignURL())
	assert.Equal(t, filepath.Join("data", "explore.sqlite"), cfg.SQLitePath())
	assert.True(t, cfg.PrealignOnSave())
	assert.True(t, cfg.LogNativeClip())
	assert.Equal(t, DefaultMinTokenDuration, cfg.MinDuration())
	assert.Equal(t, DefaultClipPad, cfg.ClipPadding())
	assert.Equal(t, DefaultNeighborDefault, cfg.Neighbors())
}

func TestLoadFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "scribe.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
data_dir: /srv/scribe
listen_addr: ":9090"
align_prealign_on_save: false
min_token_duration_sec: 0.5
neighbor_max: 5
neighbor_default: 2
`), 0644))

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "/srv/scribe", cfg.DataDirPath())
	assert.Equal(t, ":9090", cfg.Addr())
	assert.False(t, cfg.PrealignOnSave())
	assert.Equal(t, 0.5, cfg.MinDuration())
	assert.Equal(t, 2, cfg.Neighbors())
}

func TestLoadMalformed(t *testing.T) {
	p := filepath.Join(t.TempDir(), "scribe.yaml")
	require.NoError(t, os.WriteFile(p, []byte("data_dir: [unclosed"), 0644))
	_, err := Load(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed config")
}

func TestValidate(t *testing.T) {
	neg := -0.5
	zero := 0.0
	bad := 7

	cfg := &Config{MinTokenDuration: &zero}
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidValue)

	cfg = &Config{ClipPad: &neg}
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidValue)

	cfg = &Config{NeighborDefault: &bad}
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidValue, "default above neighbor_max")

	assert.NoError(t, (&Config{}).Validate())
}

func TestClampNeighbors(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, 0, cfg.ClampNeighbors(-3))
	assert.Equal(t, 2, cfg.ClampNeighbors(2))
	assert.Equal(t, DefaultNeighborMax, cfg.ClampNeighbors(99))

	limit := 1
	cfg = &Config{NeighborMax: &limit}
	assert.Equal(t, 1, cfg.ClampNeighbors(99))
}

func TestSaveRoundTrip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "nested", "scribe.yaml")
	cfg, err := Load(p)
	require.NoError(t, err)

	addr := ":7070"
	cfg.ListenAddr = &addr
	require.NoError(t, cfg.Save())

	again, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, ":7070", again.Addr())
}
