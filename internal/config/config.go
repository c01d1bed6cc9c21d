// Package config loads application settings from a YAML file, an optional
// .env file, and environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is used when no path is given.
const DefaultConfigPath = "config.yaml"

// LogConfig controls log output and rotation.
type LogConfig struct {
	Level      string `yaml:"level"`        // logrus level name, default info.
	File       string `yaml:"file"`         // Rotated log file path; empty logs to stdout only.
	MaxSizeMB  int    `yaml:"max-size-mb"`  // Rotation size threshold.
	MaxBackups int    `yaml:"max-backups"`  // Rotated files kept.
	MaxAgeDays int    `yaml:"max-age-days"` // Rotated file retention in days.
}

// Config holds all application settings.
type Config struct {
	Listen                string    `yaml:"listen"`                  // HTTP listen address.
	DatabaseDSN           string    `yaml:"database-dsn"`            // Event-store DSN; required.
	AdminPassword         string    `yaml:"admin-password"`          // Admin API bearer password; required.
	InternalDomains       []string  `yaml:"internal-domains"`        // Email domains classified as internal users.
	RequestTimeoutSeconds int       `yaml:"request-timeout-seconds"` // Per-request pipeline timeout.
	Log                   LogConfig `yaml:"log"`
}

// ResolveConfigPath resolves the effective config path from the flag value or
// the ADMINAPI_CONFIG environment variable.
func ResolveConfigPath(path string) string {
	if trimmed := strings.TrimSpace(path); trimmed != "" {
		return trimmed
	}
	if env := strings.TrimSpace(os.Getenv("ADMINAPI_CONFIG")); env != "" {
		return env
	}
	return DefaultConfigPath
}

// Load reads the config file, applies .env and environment overrides, and
// validates required fields. A missing or incomplete configuration is a fatal
// startup failure; no partial service is started.
func Load(path string) (*Config, error) {
	// .env is optional; environment wins over it either way.
	_ = godotenv.Load()

	cfg := &Config{
		Listen:                ":8317",
		RequestTimeoutSeconds: 30,
		Log:                   LogConfig{Level: "info", MaxSizeMB: 100, MaxBackups: 3, MaxAgeDays: 28},
	}

	data, errRead := os.ReadFile(path)
	if errRead != nil && !os.IsNotExist(errRead) {
		return nil, fmt.Errorf("config: read %s: %w", path, errRead)
	}
	if errRead == nil {
		if errUnmarshal := yaml.Unmarshal(data, cfg); errUnmarshal != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, errUnmarshal)
		}
	}

	applyEnvOverrides(cfg)

	if strings.TrimSpace(cfg.DatabaseDSN) == "" {
		return nil, fmt.Errorf("config: database-dsn is required (set DATABASE_DSN or %s)", path)
	}
	if strings.TrimSpace(cfg.AdminPassword) == "" {
		return nil, fmt.Errorf("config: admin-password is required (set ADMIN_PASSWORD or %s)", path)
	}
	if cfg.RequestTimeoutSeconds < 1 {
		cfg.RequestTimeoutSeconds = 30
	}
	return cfg, nil
}

// applyEnvOverrides lets the environment override file values.
func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("ADMINAPI_LISTEN")); v != "" {
		cfg.Listen = v
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_DSN")); v != "" {
		cfg.DatabaseDSN = v
	}
	if v := strings.TrimSpace(os.Getenv("ADMIN_PASSWORD")); v != "" {
		cfg.AdminPassword = v
	}
	if v := strings.TrimSpace(os.Getenv("INTERNAL_DOMAINS")); v != "" {
		var domains []string
		for _, domain := range strings.Split(v, ",") {
			if domain = strings.TrimSpace(domain); domain != "" {
				domains = append(domains, domain)
			}
		}
		cfg.InternalDomains = domains
	}
	if v := strings.TrimSpace(os.Getenv("REQUEST_TIMEOUT_SECONDS")); v != "" {
		if seconds, errParse := strconv.Atoi(v); errParse == nil && seconds > 0 {
			cfg.RequestTimeoutSeconds = seconds
		}
	}
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		cfg.Log.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_FILE")); v != "" {
		cfg.Log.File = v
	}
}
