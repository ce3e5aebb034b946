package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"CIX_USERNAME", "CIX_PASSWORD", "CIX_BASE_URL"} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Sync.Interval != "5m" {
		t.Errorf("default interval = %q, want %q", cfg.Sync.Interval, "5m")
	}
	if cfg.Sync.Fast {
		t.Error("default fast = true, want false")
	}
	if cfg.UI.DefaultView != "threaded" {
		t.Errorf("default view = %q, want %q", cfg.UI.DefaultView, "threaded")
	}
	if lvl, _ := cfg.LogLevel(); lvl != logrus.InfoLevel {
		t.Errorf("default log level = %v, want info", lvl)
	}
}

func TestLoad_FromFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
[sync]
interval = "10m"
fast = true

[server]
base_url = "https://example.test/api/"

[account]
username = "alice"

[log]
level = "debug"

[ui]
default_view = "flat"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if d, _ := cfg.SyncInterval(); d != 10*time.Minute {
		t.Errorf("interval = %v, want 10m", d)
	}
	if !cfg.Sync.Fast {
		t.Error("fast = false, want true")
	}
	if cfg.Server.BaseURL != "https://example.test/api/" {
		t.Errorf("base url = %q", cfg.Server.BaseURL)
	}
	if cfg.Account.Username != "alice" {
		t.Errorf("username = %q, want alice", cfg.Account.Username)
	}
	if lvl, _ := cfg.LogLevel(); lvl != logrus.DebugLevel {
		t.Errorf("log level = %v, want debug", lvl)
	}
	if cfg.UI.DefaultView != "flat" {
		t.Errorf("view = %q, want %q", cfg.UI.DefaultView, "flat")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("CIX_USERNAME", "bob")
	t.Setenv("CIX_PASSWORD", "hunter2")
	path := writeConfig(t, "[account]\nusername = \"alice\"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Account.Username != "bob" {
		t.Errorf("username = %q, want bob", cfg.Account.Username)
	}
	if cfg.Account.Password != "hunter2" {
		t.Errorf("password not taken from environment")
	}
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("CIX_USERNAME")
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("CIX_USERNAME=carol\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile() error: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("CIX_USERNAME") })

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Account.Username != "carol" {
		t.Errorf("username = %q, want carol", cfg.Account.Username)
	}

	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("LoadEnvFile(missing) error = %v, want nil", err)
	}
}

func TestLoad_NonExistentFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("/nonexistent/path/config.toml")
	if err != nil {
		t.Fatalf("Load() should return defaults for missing file, got error: %v", err)
	}
	if cfg.Sync.Interval != "5m" {
		t.Errorf("interval = %q, want default %q", cfg.Sync.Interval, "5m")
	}
}

func TestLoad_Invalid(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad toml", "not valid [[ toml", "failed to parse config"},
		{"bad interval", "[sync]\ninterval = \"soon\"\n", "failed to parse sync interval"},
		{"short interval", "[sync]\ninterval = \"10s\"\n", "shorter than a minute"},
		{"bad level", "[log]\nlevel = \"loud\"\n", "failed to parse log level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("Load() should return an error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfigDir(t *testing.T) {
	t.Run("with XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		dir := ConfigDir()
		want := "/custom/config/termcix"
		if dir != want {
			t.Errorf("ConfigDir() = %q, want %q", dir, want)
		}
	})
	t.Run("without XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		dir := ConfigDir()
		if !strings.HasSuffix(dir, filepath.Join(".config", "termcix")) {
			t.Errorf("ConfigDir() = %q, want suffix %q", dir, filepath.Join(".config", "termcix"))
		}
	})
}

func TestDataDir(t *testing.T) {
	t.Run("with XDG_DATA_HOME", func(t *testing.T) {
		t.Setenv("XDG_DATA_HOME", "/custom/data")
		dir := DataDir()
		want := "/custom/data/termcix"
		if dir != want {
			t.Errorf("DataDir() = %q, want %q", dir, want)
		}
	})
	t.Run("without XDG_DATA_HOME", func(t *testing.T) {
		t.Setenv("XDG_DATA_HOME", "")
		dir := DataDir()
		if !strings.HasSuffix(dir, filepath.Join(".local", "share", "termcix")) {
			t.Errorf("DataDir() = %q, want suffix %q", dir, filepath.Join(".local", "share", "termcix"))
		}
	})
}
