package session

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config controls a Session or Recorder's tunables. Every field has a
// documented default; an empty Config is valid. withDefaults fills in
// ProcessName and Category; a zero RingCapacity, DrainInterval or
// DiscoveryInterval is replaced by the constructor that consumes it.
type Config struct {
	// ProcessName is reported by the ProcessInfo endpoint. Defaults to
	// os.Executable()'s basename.
	ProcessName string `yaml:"process_name"`

	// RingCapacity sizes every new producer's ring buffer. Defaults to
	// trace.DefaultRingCapacity.
	RingCapacity int `yaml:"ring_capacity"`

	// DrainInterval controls how often NativeTraceSender drains producer
	// rings and broadcasts their contents. Defaults to
	// endpoint.DefaultDrainInterval.
	DrainInterval time.Duration `yaml:"drain_interval"`

	// DiscoveryInterval controls how often a Recorder's endpointmanager
	// re-scans for peer processes. Defaults to
	// endpointmanager.DefaultPollInterval.
	DiscoveryInterval time.Duration `yaml:"discovery_interval"`

	// Category labels every catapult event this session's sources emit.
	// Defaults to "scalopus".
	Category string `yaml:"category"`
}

func (c Config) withDefaults() Config {
	out := c
	if out.Category == "" {
		out.Category = "scalopus"
	}
	if out.ProcessName == "" {
		if exe, err := os.Executable(); err == nil {
			out.ProcessName = filepath.Base(exe)
		} else {
			out.ProcessName = "scalopus-process"
		}
	}
	return out
}

// LoadConfig reads and decodes a YAML file at path into a Config. Unknown
// keys are tolerated, matching the rest of this codebase's configuration
// loading behavior: a config schema evolving ahead of a deployed binary
// should not hard-fail it.
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("session: open config %s: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(false)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("session: decode config %s: %w", path, err)
	}
	return cfg, nil
}
