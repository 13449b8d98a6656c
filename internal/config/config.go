// Package config loads and saves the user's playback settings.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/icco/buzzer/internal/clock"
)

// MaxVoices is the most lines a simulated or audible bank can drive.
const MaxVoices = 32

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("config: invalid setting")

// AudioConfig controls the desktop audio monitor
type AudioConfig struct {
	Enabled       bool `json:"enabled"`
	LatencyMillis int  `json:"latencyMillis,omitempty"`
}

// LiveConfig controls the virtual MIDI input
type LiveConfig struct {
	DeviceName string `json:"deviceName,omitempty"`
}

// Config is the main configuration structure
type Config struct {
	Voices             int               `json:"voices"`
	TickMicros         uint32            `json:"tickMicros"`
	Calibration        clock.Calibration `json:"calibration"`
	EndOnFirstTrackEnd bool              `json:"endOnFirstTrackEnd,omitempty"`
	Verbose            bool              `json:"verbose,omitempty"`
	Audio              AudioConfig       `json:"audio"`
	Live               LiveConfig        `json:"live,omitempty"`
	LastFile           string            `json:"lastFile,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Voices:      16,
		TickMicros:  20,
		Calibration: clock.Identity,
		Audio: AudioConfig{
			Enabled:       true,
			LatencyMillis: 120,
		},
		Live: LiveConfig{
			DeviceName: "Buzzer Virtual Synth",
		},
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "buzzer"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from the default path, or returns defaults if not
// found.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFrom(path)
}

// LoadFrom reads the config at path. Settings missing from the file keep
// their defaults.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user-chosen config path
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("error in %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to the default path
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes the config to path, creating its directory.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Validate rejects settings the player cannot run with.
func (c *Config) Validate() error {
	if c.Voices < 1 || c.Voices > MaxVoices {
		return fmt.Errorf("%w: voices must be 1..%d, got %d", ErrInvalid, MaxVoices, c.Voices)
	}
	if c.TickMicros == 0 || c.TickMicros > 10_000 {
		return fmt.Errorf("%w: tickMicros must be 1..10000, got %d", ErrInvalid, c.TickMicros)
	}
	if err := c.Calibration.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c.Audio.LatencyMillis < 0 {
		return fmt.Errorf("%w: negative audio latency", ErrInvalid)
	}
	return nil
}
