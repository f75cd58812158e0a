package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// FileEnv names the environment variable holding the config file path.
const FileEnv = "ZLUDA_DUMP_CONFIG"

// Layer represents a configuration layer source.
type Layer string

const (
	// LayerDefaults represents default configuration values.
	LayerDefaults Layer = "defaults"

	// LayerFile represents configuration from a YAML file.
	LayerFile Layer = "file"

	// LayerEnv represents configuration from environment variables.
	LayerEnv Layer = "env"
)

// LayeredLoader loads configuration in layers. Each layer overrides the
// values of the previous one:
//  1. Defaults
//  2. File (YAML)
//  3. Environment
type LayeredLoader struct {
	enabledLayers map[Layer]bool
}

// NewLayeredLoader creates a loader with every layer enabled.
func NewLayeredLoader() *LayeredLoader {
	return &LayeredLoader{
		enabledLayers: map[Layer]bool{
			LayerDefaults: true,
			LayerFile:     true,
			LayerEnv:      true,
		},
	}
}

// Load builds and validates the configuration. An empty configPath falls
// back to $ZLUDA_DUMP_CONFIG; a missing file at that fallback is not an
// error, while an explicitly given one is.
func (l *LayeredLoader) Load(configPath string) (*Config, error) {
	cfg := &Config{}
	if l.enabledLayers[LayerDefaults] {
		cfg = Default()
	}

	if l.enabledLayers[LayerFile] {
		explicit := configPath != ""
		if !explicit {
			configPath = os.Getenv(FileEnv)
		}
		if configPath != "" {
			err := mergeFromFile(cfg, configPath)
			switch {
			case err == nil:
			case !explicit && errors.Is(err, fs.ErrNotExist):
			default:
				return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
			}
		}
	}

	if l.enabledLayers[LayerEnv] {
		if err := LoadFromEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from environment: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load loads the configuration with every layer enabled.
func Load(configPath string) (*Config, error) {
	return NewLayeredLoader().Load(configPath)
}

// mergeFromFile loads configuration from a YAML file and merges it into cfg.
func mergeFromFile(cfg *Config, filePath string) error {
	// #nosec G304 -- the path comes from the command line or environment.
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}
