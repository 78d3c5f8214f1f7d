// Package config loads and saves rbxsync project configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ConfigDir      = ".rbxsync"
	ConfigFileName = "config.yaml"
)

// Config is the contents of .rbxsync/config.yaml.
type Config struct {
	Version int           `yaml:"version"`
	Server  ServerConfig  `yaml:"server"`
	Watch   WatchConfig   `yaml:"watch"`
	Extract ExtractConfig `yaml:"extract"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds the HTTP server settings, including the wait windows
// for the plugin relay.
type ServerConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	PollTimeoutSecs    int    `yaml:"poll_timeout_secs"`
	CommandTimeoutSecs int    `yaml:"command_timeout_secs"`
	BatchTimeoutSecs   int    `yaml:"batch_timeout_secs"`
}

// WatchConfig controls the file watcher.
type WatchConfig struct {
	DebounceMs int      `yaml:"debounce_ms"`
	Ignore     []string `yaml:"ignore,omitempty"`
}

// ExtractConfig controls extraction defaults sent to the plugin.
type ExtractConfig struct {
	Services       []string `yaml:"services,omitempty"`
	IncludeTerrain bool     `yaml:"include_terrain"`
	IncludeAssets  bool     `yaml:"include_assets"`
}

// LoggingConfig selects the server log level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the configuration used when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Server: ServerConfig{
			Host:               "127.0.0.1",
			Port:               44755,
			PollTimeoutSecs:    15,
			CommandTimeoutSecs: 30,
			BatchTimeoutSecs:   300,
		},
		Watch: WatchConfig{
			DebounceMs: 500,
		},
		Extract: ExtractConfig{
			IncludeTerrain: true,
			IncludeAssets:  true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// GetConfigPath returns the config file path for a project root.
func GetConfigPath(root string) string {
	return filepath.Join(root, ConfigDir, ConfigFileName)
}

// Exists reports whether a config file is present under root.
func Exists(root string) bool {
	_, err := os.Stat(GetConfigPath(root))
	return err == nil
}

// Load reads the config for a project root, filling in defaults for any
// omitted sections.
func Load(root string) (*Config, error) {
	data, err := os.ReadFile(GetConfigPath(root))
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault returns the project config, or defaults if none exists.
func LoadOrDefault(root string) *Config {
	if !Exists(root) {
		return DefaultConfig()
	}
	cfg, err := Load(root)
	if err != nil {
		return DefaultConfig()
	}
	return cfg
}

// Save writes the config under root, creating .rbxsync if needed.
func (c *Config) Save(root string) error {
	dir := filepath.Join(root, ConfigDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return os.WriteFile(GetConfigPath(root), data, 0644)
}

// Addr returns the host:port the server binds to.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// PollTimeout returns the long-poll wait window.
func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.Server.PollTimeoutSecs) * time.Second
}

// CommandTimeout returns the single-command reply window.
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.Server.CommandTimeoutSecs) * time.Second
}

// BatchTimeout returns the batch-operation reply window.
func (c *Config) BatchTimeout() time.Duration {
	return time.Duration(c.Server.BatchTimeoutSecs) * time.Second
}

// Debounce returns the watcher debounce window.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Watch.DebounceMs) * time.Millisecond
}
