package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds all termcix configuration.
type Config struct {
	Sync    SyncConfig    `toml:"sync"`
	Server  ServerConfig  `toml:"server"`
	Account AccountConfig `toml:"account"`
	Log     LogConfig     `toml:"log"`
	UI      UIConfig      `toml:"ui"`
}

// SyncConfig holds synchronization settings.
type SyncConfig struct {
	Interval string `toml:"interval"`
	// Fast skips the forum listing on scheduled passes.
	Fast bool `toml:"fast"`
}

type ServerConfig struct {
	BaseURL string `toml:"base_url"`
}

// AccountConfig names the account. The password never lives in the config
// file; it comes from the keyring or CIX_PASSWORD.
type AccountConfig struct {
	Username string `toml:"username"`
	Password string `toml:"-"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// UIConfig holds TUI display settings.
type UIConfig struct {
	DefaultView string `toml:"default_view"`
}

func defaults() Config {
	return Config{
		Sync: SyncConfig{
			Interval: "5m",
		},
		Log: LogConfig{
			Level: "info",
		},
		UI: UIConfig{
			DefaultView: "threaded",
		},
	}
}

// Load reads config from path. If path is empty, returns defaults.
// Environment variables override the file.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}
	cfg.applyEnv()
	if _, err := cfg.SyncInterval(); err != nil {
		return nil, err
	}
	if _, err := cfg.LogLevel(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadEnvFile loads variables from a .env file into the process
// environment without overriding variables already set. A missing file is
// not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("CIX_USERNAME"); v != "" {
		c.Account.Username = v
	}
	if v := os.Getenv("CIX_PASSWORD"); v != "" {
		c.Account.Password = v
	}
	if v := os.Getenv("CIX_BASE_URL"); v != "" {
		c.Server.BaseURL = v
	}
}

// SyncInterval parses the sync interval.
func (c *Config) SyncInterval() (time.Duration, error) {
	d, err := time.ParseDuration(c.Sync.Interval)
	if err != nil {
		return 0, fmt.Errorf("failed to parse sync interval %q: %w", c.Sync.Interval, err)
	}
	if d < time.Minute {
		return 0, fmt.Errorf("sync interval %s is shorter than a minute", d)
	}
	return d, nil
}

func (c *Config) LogLevel() (logrus.Level, error) {
	lvl, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		return 0, fmt.Errorf("failed to parse log level: %w", err)
	}
	return lvl, nil
}

// ConfigDir returns the termcix config directory path.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "termcix")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "termcix")
}

// DataDir returns the termcix data directory path.
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "termcix")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "termcix")
}
