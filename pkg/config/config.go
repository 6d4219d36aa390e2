// Package config holds the tunables of the workflow runtime and loads them
// from YAML, JSON or loosely typed maps.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/arbor/internal/logging"
)

// Config is the runtime configuration shared by every run of a workflow.
type Config struct {
	// MaxConcurrency bounds the nodes running at once. 0 is unbounded.
	MaxConcurrency int `yaml:"max_concurrency" json:"max_concurrency" mapstructure:"max_concurrency"`
	// Timeout bounds a run. 0 disables it.
	Timeout time.Duration `yaml:"timeout" json:"timeout" mapstructure:"timeout"`
	// CancelPollInterval is how often cancel signals are checked.
	CancelPollInterval time.Duration `yaml:"cancel_poll_interval" json:"cancel_poll_interval" mapstructure:"cancel_poll_interval"`
	EventBuffer        int           `yaml:"event_buffer" json:"event_buffer" mapstructure:"event_buffer"`
	EmitterBuffer      int           `yaml:"emitter_buffer" json:"emitter_buffer" mapstructure:"emitter_buffer"`
	LogLevel           string        `yaml:"log_level" json:"log_level" mapstructure:"log_level"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		CancelPollInterval: 50 * time.Millisecond,
		EventBuffer:        256,
		EmitterBuffer:      1024,
		LogLevel:           "info",
	}
}

// Load reads a configuration file (YAML or JSON, by extension) over the
// defaults. Keys missing from the file keep their default value.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	raw := make(map[string]any)
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &raw); err != nil {
			return Config{}, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	} else {
		// Default to YAML
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return Config{}, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	}
	return FromMap(raw)
}

// FromMap decodes a loosely typed map over the defaults. Durations may be
// given as strings ("2s") or as nanoseconds; unknown keys are an error.
func FromMap(raw map[string]any) (Config, error) {
	cfg := Default()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &cfg,
	})
	if err != nil {
		return Config{}, err
	}
	if err := dec.Decode(raw); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects negative limits and unknown log levels.
func (c Config) Validate() error {
	switch {
	case c.MaxConcurrency < 0:
		return fmt.Errorf("invalid config: max_concurrency must not be negative")
	case c.Timeout < 0:
		return fmt.Errorf("invalid config: timeout must not be negative")
	case c.CancelPollInterval < 0:
		return fmt.Errorf("invalid config: cancel_poll_interval must not be negative")
	case c.EventBuffer < 0 || c.EmitterBuffer < 0:
		return fmt.Errorf("invalid config: buffers must not be negative")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Logger builds a stderr logger at the configured level.
func (c Config) Logger() *slog.Logger {
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	return logging.New(level)
}
