package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults target a quick local run; override with a config file.
const (
	DefaultReaders  = 4
	DefaultWriters  = 1
	DefaultObjects  = 8
	DefaultSlots    = 1
	DefaultDuration = 5 * time.Second
)

// Duration wraps time.Duration so YAML values like "30s" parse.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var raw string
	if err := n.Decode(&raw); err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config drives the stress run.
type Config struct {
	// Readers is the number of goroutines protecting and reading
	// through the shared pointers.
	Readers int `yaml:"readers"`

	// Writers is the number of goroutines swapping and retiring.
	// Each writer owns a disjoint set of pointers, keeping the
	// one-retire-per-object ownership rule intact.
	Writers int `yaml:"writers"`

	// Objects is the number of shared atomic pointers being rotated.
	Objects int `yaml:"objects"`

	// Slots is the number of hazard cells per reader.
	Slots int `yaml:"slots"`

	// Duration bounds the run.
	Duration Duration `yaml:"duration"`

	// UsePool recycles reclaimed objects through a memory.Pool
	// instead of dropping them to the GC.
	UsePool bool `yaml:"use_pool"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Readers:  DefaultReaders,
		Writers:  DefaultWriters,
		Objects:  DefaultObjects,
		Slots:    DefaultSlots,
		Duration: Duration(DefaultDuration),
	}
}

// Load reads a YAML config file over the defaults. An empty path just
// returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Verify(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Verify rejects configurations the harness cannot run.
func (c Config) Verify() error {
	if c.Readers < 1 {
		return fmt.Errorf("readers must be >= 1, got %d", c.Readers)
	}
	if c.Writers < 1 {
		return fmt.Errorf("writers must be >= 1, got %d", c.Writers)
	}
	if c.Objects < c.Writers {
		return fmt.Errorf("objects (%d) must be >= writers (%d) so each writer owns at least one pointer", c.Objects, c.Writers)
	}
	if c.Slots < 1 {
		return fmt.Errorf("slots must be >= 1, got %d", c.Slots)
	}
	if c.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %v", c.Duration.Std())
	}
	return nil
}
