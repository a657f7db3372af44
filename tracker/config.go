package tracker

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the engine settings. It is read from a YAML file; missing
// fields keep their defaults.
type Config struct {
	SampleRate int `yaml:"samplerate"`
	BufferSize int `yaml:"buffersize"`
	BPM        int `yaml:"bpm"`
}

var ErrInvalidConfig = errors.New("invalid config")

func DefaultConfig() Config {
	return Config{SampleRate: 44100, BufferSize: 256, BPM: 140}
}

// LoadConfig parses a config on top of the defaults.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	data, err := io.ReadAll(r)
	if err != nil {
		return cfg, fmt.Errorf("could not read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("could not parse config: %w", err)
	}
	return cfg, cfg.Validate()
}

// ConfigFile returns the path of the config file in the user config
// directory.
func ConfigFile() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "Sequin", "config.yml"), nil
}

func (c Config) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("%w: sample rate %d", ErrInvalidConfig, c.SampleRate)
	case c.BufferSize <= 0:
		return fmt.Errorf("%w: buffer size %d", ErrInvalidConfig, c.BufferSize)
	case c.BPM <= 0:
		return fmt.Errorf("%w: bpm %d", ErrInvalidConfig, c.BPM)
	}
	return nil
}
