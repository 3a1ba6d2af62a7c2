package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is mdforge's process configuration: the workspace root (the one
// required setting) plus the cache/reference-loading knobs that tune the
// Document Cache and Reference Extractor & Loader.
type Config struct {
	Workspace string      `yaml:"workspace"`
	Cache     CacheConfig `yaml:"cache"`
	Refs      RefsConfig  `yaml:"refs"`
	Log       LogConfig   `yaml:"log"`
}

// CacheConfig holds the Document Cache settings. StorePath locates the
// sqlite-backed fingerprint store. TOCDebounce is loaded and defaulted
// but not read by the Document Cache, which debounces TOC regeneration
// at a fixed 150ms.
type CacheConfig struct {
	TOCDebounce  time.Duration `yaml:"toc_debounce"`
	StorePath    string        `yaml:"store_path"`
}

// RefsConfig tunes the Reference Extractor & Loader.
type RefsConfig struct {
	LoadDepth int `yaml:"load_depth"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

func DefaultConfig() *Config {
	return &Config{
		Cache: CacheConfig{
			TOCDebounce: 150 * time.Millisecond,
			StorePath:   "",
		},
		Refs: RefsConfig{
			LoadDepth: 2,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration using the real environment.
func Load() (*Config, error) {
	return LoadWithEnv(os.Getenv)
}

// LoadWithEnv loads configuration using the provided environment lookup
// function. This allows tests to provide isolated environment values.
func LoadWithEnv(getenv func(string) string) (*Config, error) {
	cfg := DefaultConfig()

	// Try to load from config file
	configPath := getConfigPathWithEnv(getenv)
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// The workspace root is the one required environment variable;
	// it overrides whatever a config file set.
	if workspace := getenv("MDFORGE_WORKSPACE"); workspace != "" {
		cfg.Workspace = workspace
	}
	if cfg.Workspace == "" {
		return nil, fmt.Errorf("MDFORGE_WORKSPACE must be set to the workspace root")
	}

	if cfg.Cache.StorePath == "" {
		cfg.Cache.StorePath = filepath.Join(cfg.Workspace, ".mdforge", "fingerprints.db")
	}

	return cfg, nil
}

func getConfigPath() string {
	return getConfigPathWithEnv(os.Getenv)
}

func getConfigPathWithEnv(getenv func(string) string) string {
	// Check XDG_CONFIG_HOME first
	if xdgConfig := getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "mdforge", "config.yaml")
	}

	// Fall back to ~/.config
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "mdforge", "config.yaml")
}
