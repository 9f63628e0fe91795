// Package config provides configuration loading and management for imagestreamstack.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// DatasetConfig holds settings that apply to a single dataset folder
type DatasetConfig struct {
	// PixelSize is the physical pixel size in micrometers, 0 means the run default
	PixelSize float64 `yaml:"pixelSize,omitempty"`

	// ChannelFile is a channel-naming document applied on top of the global one
	ChannelFile string `yaml:"channelFile,omitempty"`

	// Names are inline channel names applied last
	Names map[int]string `yaml:"names,omitempty"`
}

// Config represents the application configuration loaded from YAML
type Config struct {
	// Input parameters
	Input struct {
		// Suffix is the file suffix of image entries, with or without the leading dot
		Suffix string `yaml:"suffix"`
	} `yaml:"input"`

	// Output parameters
	Output struct {
		// Dir is where stacks are written, empty means <archive dir>/merged_tiffs
		Dir string `yaml:"dir"`

		// Extension is the output file extension without the dot
		Extension string `yaml:"extension"`

		// ExtractPlanes saves every assembled plane as a PNG as well
		ExtractPlanes bool `yaml:"extractPlanes"`

		// PlanesDir is the directory for extracted planes, relative to Dir
		PlanesDir string `yaml:"planesDir"`
	} `yaml:"output"`

	// Processing parameters
	Processing struct {
		// Workers is the number of datasets processed concurrently
		Workers int `yaml:"workers"`

		// CacheDecodes keeps decoded pages between the statistics and assembly passes
		CacheDecodes bool `yaml:"cacheDecodes"`

		// DefaultChannelNames names every channel "Ch<N>" before overrides apply
		DefaultChannelNames bool `yaml:"defaultChannelNames"`

		// PixelSize is the default physical pixel size in micrometers
		PixelSize float64 `yaml:"pixelSize"`
	} `yaml:"processing"`

	// Channel naming applied to all datasets
	Channels struct {
		// File is a TOML channel-naming document
		File string `yaml:"file"`

		// Names are inline channel names layered over File
		Names map[int]string `yaml:"names,omitempty"`
	} `yaml:"channels"`

	// Datasets holds per-dataset settings keyed by folder name
	Datasets map[string]DatasetConfig `yaml:"datasets,omitempty"`

	// Logging parameters
	Logging struct {
		// Level is one of debug, info, warn, error
		Level string `yaml:"level"`

		// Format is text or json
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Input.Suffix = ".ome.tif"

	cfg.Output.Extension = "tif"
	cfg.Output.ExtractPlanes = false
	cfg.Output.PlanesDir = "planes"

	cfg.Processing.Workers = 1
	cfg.Processing.CacheDecodes = false
	cfg.Processing.DefaultChannelNames = false
	cfg.Processing.PixelSize = 1.0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late in a run
func (c *Config) Validate() error {
	var errs []error
	if c.Input.Suffix == "" || c.Input.Suffix == "." {
		errs = append(errs, errors.New("input.suffix must not be empty"))
	}
	if c.Output.Extension == "" {
		errs = append(errs, errors.New("output.extension must not be empty"))
	}
	if c.Processing.Workers < 1 {
		errs = append(errs, fmt.Errorf("processing.workers must be at least 1, got %d", c.Processing.Workers))
	}
	if !(c.Processing.PixelSize > 0) {
		errs = append(errs, fmt.Errorf("processing.pixelSize must be positive, got %v", c.Processing.PixelSize))
	}

	ids := make([]string, 0, len(c.Datasets))
	for id := range c.Datasets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if ps := c.Datasets[id].PixelSize; ps < 0 {
			errs = append(errs, fmt.Errorf("datasets.%s.pixelSize must be positive, got %v", id, ps))
		}
	}
	return errors.Join(errs...)
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
