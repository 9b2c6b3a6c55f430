package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultFile is the topology file looked up in the working directory.
const DefaultFile = "storm.yml"

// LoadFile reads, defaults and validates the topology from a YAML file.
func LoadFile(path string) (*Config, error) {
	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	// Compose project directories are relative to the topology file.
	base := filepath.Dir(path)
	if !filepath.IsAbs(cfg.ServicesDir) {
		cfg.ServicesDir = filepath.Join(base, cfg.ServicesDir)
	}
	if !filepath.IsAbs(cfg.DeployDir) {
		cfg.DeployDir = filepath.Join(base, cfg.DeployDir)
	}

	return cfg, nil
}

// Parse decodes, defaults and validates a topology document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// ApplyDefaults fills optional fields.
func (c *Config) ApplyDefaults() {
	for _, groups := range []ProviderGroups{c.Discovery, c.Hosts} {
		for _, placements := range groups {
			for _, pl := range placements {
				pl.ApplyDefaults()
			}
		}
	}
	if c.DiscoveryImage == "" {
		c.DiscoveryImage = DefaultDiscoveryImage
	}
	if c.ServicesDir == "" {
		c.ServicesDir = "services"
	}
	if c.DeployDir == "" {
		c.DeployDir = "deploy"
	}
}

// Find returns path if set, or the default topology file when it exists.
func Find(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	if _, err := os.Stat(DefaultFile); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("no %s found in the current directory, pass --config", DefaultFile)
		}
		return "", fmt.Errorf("failed to stat %s: %w", DefaultFile, err)
	}
	return DefaultFile, nil
}
