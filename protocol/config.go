package protocol

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so configs can spell durations as "30s"
// in both JSON and YAML.
type Duration time.Duration

// Std returns the underlying time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", time.Duration(d).String())), nil
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("duration must be a string, got %s", data)
	}
	parsed, err := time.ParseDuration(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Config provides the deployment-wide protocol configuration. The dealer
// serves it to all parties through the registry's /config endpoint.
type Config struct {
	// Ell is the chunk length in bits.
	Ell int `json:"ell" yaml:"ell"`

	// Chunks is the number of chunks per fingerprint.
	Chunks int `json:"chunks" yaml:"chunks"`

	// Epsilon is the per-chunk match threshold: a chunk matches when its
	// Hamming distance is strictly below Epsilon.
	Epsilon int `json:"epsilon" yaml:"epsilon"`

	// EpochDuration is how long one epoch's setup material stays valid.
	EpochDuration Duration `json:"epoch_duration" yaml:"epoch_duration"`
}

// DefaultConfig matches the published parameterization: 16 chunks of
// 16 bits with threshold 6 over 256-bit fingerprints.
func DefaultConfig() *Config {
	return &Config{
		Ell:           16,
		Chunks:        16,
		Epsilon:       6,
		EpochDuration: Duration(time.Minute),
	}
}

// Params validates the configuration and returns protocol parameters.
func (c *Config) Params() (Params, error) {
	return NewParams(c.Ell, c.Chunks, c.Epsilon)
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if _, err := cfg.Params(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
