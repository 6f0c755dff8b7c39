// Package config handles loading and validation of the clusterd configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidTiers contains all cluster tiers the provider accepts.
var ValidTiers = map[string]bool{
	"small":  true,
	"medium": true,
	"large":  true,
}

// defaultNominalDurations maps each tier to the duration a provisioning run
// typically takes. The progress estimator extrapolates against these values.
var defaultNominalDurations = map[string]time.Duration{
	"small":  5 * time.Minute,
	"medium": 10 * time.Minute,
	"large":  20 * time.Minute,
}

// Config is the top-level clusterd configuration.
type Config struct {
	// Listen is the address the HTTP API binds to.
	Listen string `yaml:"listen"`

	// DataFile is the path of the JSON snapshot holding all provisioning
	// requests. It is the only durable store.
	DataFile string `yaml:"data_file"`

	Provider ProviderConfig `yaml:"provider"`

	// NominalDurations overrides the expected provisioning duration per tier.
	NominalDurations map[string]time.Duration `yaml:"nominal_durations"`
}

// ProviderConfig holds the connection settings for the cluster provider API.
type ProviderConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
	Region  string `yaml:"region"`
}

// LoadFile reads and parses the configuration from a YAML file.
func LoadFile(path string) (*Config, error) {
	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml: %w", err)
	}

	cfg.applyDefaults()

	// The token is a secret and normally comes from the environment.
	if token := os.Getenv("CLUSTERD_PROVIDER_TOKEN"); token != "" {
		cfg.Provider.Token = token
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.DataFile == "" {
		c.DataFile = "clusterd-requests.json"
	}
	if c.Provider.Region == "" {
		c.Provider.Region = "eu-central"
	}
	if c.NominalDurations == nil {
		c.NominalDurations = make(map[string]time.Duration)
	}
	for tier, d := range defaultNominalDurations {
		if _, ok := c.NominalDurations[tier]; !ok {
			c.NominalDurations[tier] = d
		}
	}
}

// Validate checks the configuration and returns a detailed error if it is unusable.
func (c *Config) Validate() error {
	if c.Provider.BaseURL == "" {
		return fmt.Errorf("provider.base_url is required")
	}
	if c.Provider.Token == "" {
		return fmt.Errorf("provider.token is required (or set CLUSTERD_PROVIDER_TOKEN)")
	}
	for tier, d := range c.NominalDurations {
		if !ValidTiers[tier] {
			return fmt.Errorf("nominal_durations: unknown tier %q", tier)
		}
		if d <= 0 {
			return fmt.Errorf("nominal_durations: duration for tier %q must be positive", tier)
		}
	}
	return nil
}

// NominalDuration returns the expected provisioning duration for a tier.
func (c *Config) NominalDuration(tier string) time.Duration {
	if d, ok := c.NominalDurations[tier]; ok {
		return d
	}
	return defaultNominalDurations["medium"]
}
