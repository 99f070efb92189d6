package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	General       GeneralConfig       `toml:"general"`
	Notifications NotificationsConfig `toml:"notifications"`
	Web           WebConfig           `toml:"web"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	CrawlersDir       string `toml:"crawlers_dir"`
	LogsDir           string `toml:"logs_dir"`
	DatabasePath      string `toml:"database_path"`
	Timezone          string `toml:"timezone"`
	RunTimeoutSeconds int    `toml:"run_timeout_seconds"`
	PythonBin         string `toml:"python_bin"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	Desktop       bool   `toml:"desktop"`
	SlackWebhook  string `toml:"slack_webhook"`
	NotifySuccess bool   `toml:"notify_success"`
}

// WebConfig holds web UI settings
type WebConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".crawl-orch")
	return &Config{
		General: GeneralConfig{
			CrawlersDir:       filepath.Join(base, "crawlers"),
			LogsDir:           filepath.Join(base, "logs"),
			DatabasePath:      filepath.Join(base, "crawl-orch.db"),
			Timezone:          "Asia/Shanghai",
			RunTimeoutSeconds: 3600,
			PythonBin:         "python3",
		},
		Notifications: NotificationsConfig{
			Desktop: false,
		},
		Web: WebConfig{
			Port: 8080,
			Host: "127.0.0.1",
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Expand paths
	cfg.General.CrawlersDir = ExpandPath(cfg.General.CrawlersDir)
	cfg.General.LogsDir = ExpandPath(cfg.General.LogsDir)
	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)

	return cfg, nil
}

// Location resolves the configured fixed timezone. Every timestamp the
// system captures uses this location so ordering and display stay consistent.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.General.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", c.General.Timezone, err)
	}
	return loc, nil
}

// RunTimeout returns the per-run wall-clock budget
func (c *Config) RunTimeout() time.Duration {
	if c.General.RunTimeoutSeconds <= 0 {
		return time.Hour
	}
	return time.Duration(c.General.RunTimeoutSeconds) * time.Second
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "crawl-orch", "config.toml")
}
