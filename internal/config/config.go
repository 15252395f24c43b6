// Package config loads runtime settings from .env files, the environment and
// an optional YAML schema override.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"replay-analyzer/internal/matchlog"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DotEnvPaths are tried in order; the first readable file wins
var DotEnvPaths = []string{".env", "../.env", "../../.env", "replay-analyzer/.env"}

// Config is the environment of the analyzer commands
type Config struct {
	DatabaseURL     string `env:"DATABASE_URL"`
	TursoURL        string `env:"TURSO_DATABASE_URL"`
	TursoAuthToken  string `env:"TURSO_AUTH_TOKEN"`
	SQLitePath      string `env:"SQLITE_PATH"`
	StoragePath     string `env:"BLOB_STORAGE_PATH"`
	SchemaFile      string `env:"SCHEMA_FILE"`
	Port            string `env:"PORT"                envDefault:"8080"`
	Workers         int    `env:"WORKERS"             envDefault:"4"`
	WebhookURL      string `env:"DISCORD_WEBHOOK_URL"`
	TicksPerMinute  int64  `env:"TICKS_PER_MINUTE"    envDefault:"60"`
	MaxFileEntries  int    `env:"ROTATE_MAX_ENTRIES"  envDefault:"1000"`
	RotateAfterMins int    `env:"ROTATE_AFTER_MINUTES" envDefault:"60"`
}

// LoadDotEnv loads the first .env found in paths and returns its path,
// or "" if none was found.
func LoadDotEnv(paths ...string) string {
	if len(paths) == 0 {
		paths = DotEnvPaths
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err == nil {
			return path
		}
	}
	return ""
}

// Load parses the environment into a Config
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	// Paths are often pasted with quotes into .env files
	cfg.StoragePath = strings.Trim(cfg.StoragePath, "\"")
	cfg.SQLitePath = strings.Trim(cfg.SQLitePath, "\"")
	cfg.SchemaFile = strings.Trim(cfg.SchemaFile, "\"")

	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return cfg, nil
}

// WarmDir holds logs waiting to be processed
func (c Config) WarmDir() string { return filepath.Join(c.StoragePath, "warm") }

// ColdDir holds compressed logs that were processed
func (c Config) ColdDir() string { return filepath.Join(c.StoragePath, "cold") }

// ReportDir holds the JSONL report files
func (c Config) ReportDir() string { return filepath.Join(c.StoragePath, "reports") }

// LoadSchema reads a YAML schema override; an empty path yields the defaults
func LoadSchema(path string) (matchlog.Schema, error) {
	if path == "" {
		return matchlog.DefaultSchema(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return matchlog.Schema{}, fmt.Errorf("failed to read schema: %w", err)
	}
	schema, err := matchlog.ParseSchema(data)
	if err != nil {
		return matchlog.Schema{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return schema, nil
}
