// Package config loads the configuration of latency negotiation and
// encoders from TOML or YAML files.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"pipelined.dev/avpipe"
	"pipelined.dev/avpipe/h264"
	"pipelined.dev/avpipe/play"
)

// Duration is a time.Duration written as a string, e.g "20ms".
type Duration time.Duration

// UnmarshalText parses the duration.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration: %w", err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalYAML parses the duration from a scalar node.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	return d.UnmarshalText([]byte(node.Value))
}

// Play contains configuration of latency negotiation.
type Play struct {
	OutputLatency Duration `toml:"output_latency" yaml:"output_latency"`
}

// Encoder contains tuning of encoders. Options are passed to backends as
// is.
type Encoder struct {
	Preset              string            `toml:"preset" yaml:"preset"`
	Tune                string            `toml:"tune" yaml:"tune"`
	Profile             string            `toml:"profile" yaml:"profile"`
	SpeedControlLatency Duration          `toml:"speed_control_latency" yaml:"speed_control_latency"`
	Options             map[string]string `toml:"options" yaml:"options"`
}

// Logging contains configuration for log output.
type Logging struct {
	Level string `toml:"level" yaml:"level"`
}

// Config encapsulates all configuration values.
type Config struct {
	Play    Play    `toml:"play" yaml:"play"`
	Encoder Encoder `toml:"encoder" yaml:"encoder"`
	Logging Logging `toml:"log" yaml:"log"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Play: Play{
			OutputLatency: Duration(play.DefaultOutputLatency),
		},
		Encoder: Encoder{
			Options: map[string]string{},
		},
		Logging: Logging{
			Level: logrus.InfoLevel.String(),
		},
	}
}

// Load parses and validates a configuration file. Format is chosen by
// extension. Values missing in the file keep their defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if err := toml.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.NewDecoder(file).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	default:
		return nil, fmt.Errorf("config format %q: %w", ext, avpipe.ErrInvalid)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks configuration values.
func (c *Config) Validate() error {
	if c.Play.OutputLatency < 0 {
		return fmt.Errorf("play.output_latency %v: %w", time.Duration(c.Play.OutputLatency), avpipe.ErrInvalid)
	}
	if c.Encoder.SpeedControlLatency < 0 {
		return fmt.Errorf("encoder.speed_control_latency %v: %w", time.Duration(c.Encoder.SpeedControlLatency), avpipe.ErrInvalid)
	}
	if c.Encoder.Tune != "" && c.Encoder.Preset == "" {
		return fmt.Errorf("encoder.tune without preset: %w", avpipe.ErrInvalid)
	}
	for key := range c.Encoder.Options {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("encoder.options: empty key: %w", avpipe.ErrInvalid)
		}
	}
	if c.Logging.Level != "" {
		if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
			return fmt.Errorf("log.level: %w: %w", avpipe.ErrInvalid, err)
		}
	}
	return nil
}

// Apply sets tuning and options on the encoder pipe. Options are set in
// key order.
func (e *Encoder) Apply(p *avpipe.Pipe) error {
	if e.Preset != "" {
		if err := p.Control(&h264.SetDefaultPreset{Preset: e.Preset, Tune: e.Tune}); err != nil {
			return fmt.Errorf("apply preset: %w", err)
		}
	}
	if e.Profile != "" {
		if err := p.Control(&h264.SetProfile{Profile: e.Profile}); err != nil {
			return fmt.Errorf("apply profile: %w", err)
		}
	}
	if e.SpeedControlLatency > 0 {
		if err := p.Control(&h264.SetSpeedControlLatency{Latency: time.Duration(e.SpeedControlLatency)}); err != nil {
			return fmt.Errorf("apply speed control latency: %w", err)
		}
	}
	for _, key := range sortedKeys(e.Options) {
		if err := p.SetOption(key, e.Options[key]); err != nil {
			return fmt.Errorf("apply option %s: %w", key, err)
		}
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
