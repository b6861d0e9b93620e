// Package config loads the CLI's TOML configuration.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Config is the on-disk configuration of the birchdb CLI.
type Config struct {
	Store StoreConfig `toml:"store"`
	Log   LogConfig   `toml:"log"`
}

// StoreConfig locates the data directory and sizes the catalog caches.
type StoreConfig struct {
	// Path is the pebble directory; empty runs in memory.
	Path string `toml:"path"`
	// CacheSize bounds each catalog cache; zero picks the default.
	CacheSize int `toml:"cache_size"`
}

// LogConfig controls CLI logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{Log: LogConfig{Level: "info"}}
}

// Load reads a TOML config file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("load config %q: %w", path, err)
	}
	return cfg, nil
}
