package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all garden configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Scoring  ScoringConfig  `yaml:"scoring"`
	// TypesFile points at an interaction type defaults file applied by
	// "garden config apply" when no path is given.
	TypesFile string `yaml:"types_file"`
}

type ServerConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Path     string `yaml:"path"`      // resolved at runtime via store.DefaultDBPath() when empty
	PhotoDir string `yaml:"photo_dir"` // defaults to "photos" next to the database
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
}

type ScoringConfig struct {
	// SweepInterval is how often every score is recomputed while serving.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// Environment overrides, applied after the file.
const (
	EnvDB       = "GARDEN_DB"
	EnvLogLevel = "GARDEN_LOG_LEVEL"
)

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37778,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Scoring: ScoringConfig{
			SweepInterval: 24 * time.Hour,
		},
	}
}

// Load reads a YAML config file over the defaults. A missing file is not an
// error; an empty path skips the file entirely.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if v := os.Getenv(EnvDB); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = v
	}
	return cfg, cfg.Validate()
}

// Validate rejects values the rest of the program cannot work with.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Scoring.SweepInterval < 0 {
		return fmt.Errorf("scoring.sweep_interval must not be negative: %s", c.Scoring.SweepInterval)
	}
	switch c.Log.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	return nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
