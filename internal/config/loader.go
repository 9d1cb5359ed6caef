package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the daemon.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr string `json:"addr" yaml:"addr" toml:"addr"`
	// Managed storage directory for downloaded model files.
	ModelsDir string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	// Directory for the persisted key-value store (catalog, side-table).
	DataDir string `json:"data_dir" yaml:"data_dir" toml:"data_dir"`
	// Enables the durable background transport. When false every background
	// operation fails fast with an unavailable error.
	BackgroundDownloads bool `json:"background_downloads" yaml:"background_downloads" toml:"background_downloads"`
	// Hub discovery cache TTL in seconds (0 = default 300).
	HubTTLSeconds int `json:"hub_ttl_seconds" yaml:"hub_ttl_seconds" toml:"hub_ttl_seconds"`
	// Overrides detected total device memory for admission control (0 = autodetect).
	TotalMemoryGB float64 `json:"total_memory_gb" yaml:"total_memory_gb" toml:"total_memory_gb"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
