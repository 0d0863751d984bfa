// Package config provides reading and writing of scribe configuration.
// Configuration lives in a single YAML file passed via --config (default
// scribe.yaml in the working directory); missing files yield defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidValue is returned when a config value is out of bounds.
	ErrInvalidValue = errors.New("invalid config value")
)

// Defaults applied when not configured.
const (
	DefaultDataDir          = "data"
	DefaultListenAddr       = ":8080"
	DefaultAlignEndpoint    = "http://silence-remover.com:8000/align"
	DefaultAudioLogDir      = "audio-log"
	DefaultMinTokenDuration = 0.20
	DefaultClipPad          = 0.10
	DefaultNeighborDefault  = 1
	DefaultNeighborMax      = 3
)

// Config contains configuration for scribe. Pointer fields distinguish
// "not set" from explicit zero values; accessor methods supply defaults.
type Config struct {
	DataDir           *string  `yaml:"data_dir,omitempty"`
	ListenAddr        *string  `yaml:"listen_addr,omitempty"`
	AlignEndpoint     *string  `yaml:"align_endpoint,omitempty"`
	AlignPrealign     *bool    `yaml:"align_prealign_on_save,omitempty"`
	AudioLogDir       *string  `yaml:"audio_log_dir,omitempty"`
	AudioLogNative    *bool    `yaml:"audio_log_native,omitempty"`
	MinTokenDuration  *float64 `yaml:"min_token_duration_sec,omitempty"`
	ClipPad           *float64 `yaml:"clip_pad_sec,omitempty"`
	NeighborDefault   *int     `yaml:"neighbor_default,omitempty"`
	NeighborMax       *int     `yaml:"neighbor_max,omitempty"`

	// path is the file this config was loaded from (for Save)
	path string
}

// Validate checks that all configured values are within acceptable bounds.
// Returns nil if all values are valid or not set (defaults will be used).
func (c *Config) Validate() error {
	if c.MinTokenDuration != nil && *c.MinTokenDuration <= 0 {
		return fmt.Errorf("%w: min_token_duration_sec must be > 0, got %v", ErrInvalidValue, *c.MinTokenDuration)
	}
	if c.ClipPad != nil && *c.ClipPad < 0 {
		return fmt.Errorf("%w: clip_pad_sec must be >= 0, got %v", ErrInvalidValue, *c.ClipPad)
	}
	if c.NeighborMax != nil && *c.NeighborMax < 0 {
		return fmt.Errorf("%w: neighbor_max must be >= 0, got %d", ErrInvalidValue, *c.NeighborMax)
	}
	if c.NeighborDefault != nil {
		if *c.NeighborDefault < 0 || *c.NeighborDefault > c.neighborMaxValue() {
			return fmt.Errorf("%w: neighbor_default must be within [0, %d], got %d",
				ErrInvalidValue, c.neighborMaxValue(), *c.NeighborDefault)
		}
	}
	return nil
}

// DataDirPath returns the data directory root (defaults to "data").
func (c *Config) DataDirPath() string {
	if c.DataDir == nil {
		return DefaultDataDir
	}
	return *c.DataDir
}

// SQLitePath returns the database file location under the data dir.
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDirPath(), "explore.sqlite")
}

// AudioRoot returns the directory audio files are resolved under.
func (c *Config) AudioRoot() string {
	return c.DataDirPath()
}

// Addr returns the HTTP listen address (defaults to ":8080").
func (c *Config) Addr() string {
	if c.ListenAddr == nil {
		return DefaultListenAddr
	}
	return *c.ListenAddr
}

// AlignURL returns the forced-aligner endpoint.
func (c *Config) AlignURL() string {
	if c.AlignEndpoint == nil {
		return DefaultAlignEndpoint
	}
	return *c.AlignEndpoint
}

// PrealignOnSave reports whether saves re-align changed segments (default true).
func (c *Config) PrealignOnSave() bool {
	if c.AlignPrealign == nil {
		return true
	}
	return *c.AlignPrealign
}

// AudioLogPath returns the directory for alignment artifacts.
func (c *Config) AudioLogPath() string {
	if c.AudioLogDir == nil {
		return DefaultAudioLogDir
	}
	return *c.AudioLogDir
}

// LogNativeClip reports whether an un-resampled clip is also saved (default true).
func (c *Config) LogNativeClip() bool {
	if c.AudioLogNative == nil {
		return true
	}
	return *c.AudioLogNative
}

// MinDuration returns the minimum token duration in seconds (default 0.20).
func (c *Config) MinDuration() float64 {
	if c.MinTokenDuration == nil {
		return DefaultMinTokenDuration
	}
	return *c.MinTokenDuration
}

// ClipPadding returns the clip padding in seconds (default 0.10).
func (c *Config) ClipPadding() float64 {
	if c.ClipPad == nil {
		return DefaultClipPad
	}
	return *c.ClipPad
}

// Neighbors returns the default neighbor window size (default 1).
func (c *Config) Neighbors() int {
	if c.NeighborDefault == nil {
		return DefaultNeighborDefault
	}
	return *c.NeighborDefault
}

func (c *Config) neighborMaxValue() int {
	if c.NeighborMax == nil {
		return DefaultNeighborMax
	}
	return *c.NeighborMax
}

// ClampNeighbors clamps a requested neighbor window to [0, neighbor_max].
func (c *Config) ClampNeighbors(n int) int {
	if n < 0 {
		return 0
	}
	if max := c.neighborMaxValue(); n > max {
		return max
	}
	return n
}

// Load reads configuration from path. A missing file yields defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Config{path: path}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("malformed config file %s: %w\n\nTo fix: edit the file to correct the YAML syntax, or delete it to use defaults", path, err)
	}
	cfg.path = path

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes the configuration back to its original location, creating
// parent directories as needed.
func (c *Config) Save() error {
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
