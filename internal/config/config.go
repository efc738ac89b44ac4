// Package config loads the daemon configuration from defaults, an
// optional .env file in the working directory, and PREFSYNC_*
// environment variables (highest precedence).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/mkraev/prefsync/internal/settings"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Write   WriteConfig
	Auth    AuthConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port       int  `env:"PREFSYNC_PORT"`
	MCPEnabled bool `env:"PREFSYNC_MCP_ENABLED"`
}

type StorageConfig struct {
	DataDir string `env:"PREFSYNC_DATA_DIR"`
	// Backend is auto, primary, secondary, or local. "auto" probes the
	// environment at startup.
	Backend string `env:"PREFSYNC_BACKEND"`
}

type WriteConfig struct {
	DebounceMS int `env:"PREFSYNC_DEBOUNCE_MS"`
}

type AuthConfig struct {
	Token string `env:"PREFSYNC_TOKEN"`
}

type LogConfig struct {
	Level string `env:"PREFSYNC_LOG_LEVEL"`
}

func defaults() Config {
	return Config{
		Server:  ServerConfig{Port: 4600},
		Storage: StorageConfig{DataDir: defaultDataDir(), Backend: "auto"},
		Write:   WriteConfig{DebounceMS: int(settings.DefaultDebounce / time.Millisecond)},
		Log:     LogConfig{Level: "info"},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "prefsync-data"
		}
	}
	return filepath.Join(dir, "prefsync")
}

// Load builds the configuration. The bearer token is required: every
// surface except /health sits behind it.
func Load() (Config, error) {
	godotenv.Load() // best effort; a missing .env is fine

	cfg := defaults()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing environment: %w", err)
	}
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if _, _, err := settings.ParseBackend(cfg.Storage.Backend); err != nil {
		return fmt.Errorf("PREFSYNC_BACKEND: %w", err)
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("PREFSYNC_PORT: invalid port %d", cfg.Server.Port)
	}
	if cfg.Write.DebounceMS < 0 {
		return fmt.Errorf("PREFSYNC_DEBOUNCE_MS: must not be negative, got %d", cfg.Write.DebounceMS)
	}
	if cfg.Auth.Token == "" {
		return fmt.Errorf("missing required config: bearer token. Set it via environment variable PREFSYNC_TOKEN")
	}
	return nil
}

// DebounceInterval returns the configured write-coalescing window.
func (c Config) DebounceInterval() time.Duration {
	return time.Duration(c.Write.DebounceMS) * time.Millisecond
}
