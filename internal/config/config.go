// Package config loads and validates the midicap configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config is the effective configuration for a capture run.
type Config struct {
	Capture  CaptureConfig `mapstructure:"capture" yaml:"capture"`
	Output   OutputConfig  `mapstructure:"output" yaml:"output"`
	Tools    ToolsConfig   `mapstructure:"tools" yaml:"tools"`
	Denylist string        `mapstructure:"denylist" yaml:"denylist"`
}

// CaptureConfig describes the audio stream read from the virtual capture
// device. The defaults match a plain CD-quality stereo capture.
type CaptureConfig struct {
	// DeviceName is the exact name of the virtual capture device that
	// re-ingests system output as input.
	DeviceName      string `mapstructure:"device_name" yaml:"device_name"`
	SampleRate      int    `mapstructure:"sample_rate" yaml:"sample_rate"`
	Channels        int    `mapstructure:"channels" yaml:"channels"`
	SampleBits      int    `mapstructure:"sample_bits" yaml:"sample_bits"`
	FramesPerBuffer int    `mapstructure:"frames_per_buffer" yaml:"frames_per_buffer"`
	// TailSlackSec extends the capture past the reported MIDI duration so
	// release tails and reverb are not cut off.
	TailSlackSec float64 `mapstructure:"tail_slack_sec" yaml:"tail_slack_sec"`
	// SettleDelayMs is the pause between opening the input stream and
	// starting playback, so the first frames are not lost.
	SettleDelayMs int `mapstructure:"settle_delay_ms" yaml:"settle_delay_ms"`
}

// OutputConfig controls where and in which format the final file lands.
type OutputConfig struct {
	// Format is the default output extension (without dot) used when no
	// explicit output path is given.
	Format string `mapstructure:"format" yaml:"format"`
	// Directory, when set, receives default-named outputs instead of the
	// MIDI file's own directory.
	Directory string `mapstructure:"directory" yaml:"directory"`
}

// ToolsConfig names the external collaborators.
type ToolsConfig struct {
	// Switcher is the binary that queries and sets the system output
	// device (a SwitchAudioSource-compatible CLI).
	Switcher string `mapstructure:"switcher" yaml:"switcher"`
	// Transcoder converts the raw capture to the requested format.
	Transcoder string `mapstructure:"transcoder" yaml:"transcoder"`
	// SynthPlayers are candidate MIDI synthesizer players, tried in order.
	SynthPlayers []string `mapstructure:"synth_players" yaml:"synth_players"`
	// SoundFont is required by players that do not ship one (fluidsynth).
	SoundFont string `mapstructure:"soundfont" yaml:"soundfont"`
}

func defaults() map[string]any {
	return map[string]any{
		"capture.device_name":       "Soundflower (2ch)",
		"capture.sample_rate":       44100,
		"capture.channels":          2,
		"capture.sample_bits":       16,
		"capture.frames_per_buffer": 1024,
		"capture.tail_slack_sec":    1.0,
		"capture.settle_delay_ms":   1000,
		"output.format":             "m4a",
		"output.directory":          "",
		"tools.switcher":            "SwitchAudioSource",
		"tools.transcoder":          "ffmpeg",
		"tools.synth_players":       []string{"timidity", "fluidsynth"},
		"tools.soundfont":           "",
		"denylist":                  filepath.Join(os.Getenv("HOME"), ".config", "midicap.denylist"),
	}
}

// Load reads the config file at path, merged over built-in defaults. A
// missing file is not an error: the defaults alone are returned.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, val := range defaults() {
		v.SetDefault(key, val)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the loaded values for obvious nonsense.
func (c *Config) Validate() error {
	if c.Capture.DeviceName == "" {
		return fmt.Errorf("capture.device_name must not be empty")
	}
	if c.Capture.SampleRate <= 0 {
		return fmt.Errorf("capture.sample_rate must be positive, got %d", c.Capture.SampleRate)
	}
	if c.Capture.Channels <= 0 {
		return fmt.Errorf("capture.channels must be positive, got %d", c.Capture.Channels)
	}
	if c.Capture.SampleBits != 16 {
		return fmt.Errorf("capture.sample_bits: only 16-bit capture is supported, got %d", c.Capture.SampleBits)
	}
	if c.Capture.FramesPerBuffer <= 0 {
		return fmt.Errorf("capture.frames_per_buffer must be positive, got %d", c.Capture.FramesPerBuffer)
	}
	if c.Capture.TailSlackSec < 0 {
		return fmt.Errorf("capture.tail_slack_sec must not be negative, got %g", c.Capture.TailSlackSec)
	}
	if c.Capture.SettleDelayMs < 0 {
		return fmt.Errorf("capture.settle_delay_ms must not be negative, got %d", c.Capture.SettleDelayMs)
	}
	if c.Output.Format == "" {
		return fmt.Errorf("output.format must not be empty")
	}
	if c.Tools.Switcher == "" {
		return fmt.Errorf("tools.switcher must not be empty")
	}
	if c.Tools.Transcoder == "" {
		return fmt.Errorf("tools.transcoder must not be empty")
	}
	if len(c.Tools.SynthPlayers) == 0 {
		return fmt.Errorf("tools.synth_players must list at least one player")
	}
	return nil
}
