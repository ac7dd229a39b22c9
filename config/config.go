// Package config loads the application configuration from a file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/c360/biostream/errors"
	"github.com/c360/biostream/store"
)

// NATSConfig holds the broker connection settings.
type NATSConfig struct {
	URL           string        `json:"url" yaml:"url"`
	Username      string        `json:"username" yaml:"username"`
	Password      string        `json:"password" yaml:"password"`
	Token         string        `json:"token" yaml:"token"`
	MaxReconnects int           `json:"maxReconnects" yaml:"maxReconnects"`
	ReconnectWait time.Duration `json:"reconnectWait" yaml:"reconnectWait"`
}

// HTTPConfig holds the API server settings.
type HTTPConfig struct {
	Addr      string `json:"addr" yaml:"addr"`
	StaticDir string `json:"staticDir" yaml:"staticDir"`
}

// RetentionConfig controls the periodic cleanup of old measurements.
type RetentionConfig struct {
	Enabled  bool          `json:"enabled" yaml:"enabled"`
	MaxAge   int           `json:"maxAgeDays" yaml:"maxAgeDays"`
	Interval time.Duration `json:"interval" yaml:"interval"`
}

// Config is the complete application configuration.
type Config struct {
	NATS      NATSConfig      `json:"nats" yaml:"nats"`
	Database  store.Config    `json:"database" yaml:"database"`
	HTTP      HTTPConfig      `json:"http" yaml:"http"`
	Retention RetentionConfig `json:"retention" yaml:"retention"`
	LogLevel  string          `json:"logLevel" yaml:"logLevel"`
}

// Default returns the configuration used when no file and no environment
// overrides are present.
func Default() *Config {
	return &Config{
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			MaxReconnects: 10,
			ReconnectWait: 5 * time.Second,
		},
		Database: store.Config{
			Host:     "localhost",
			Port:     5432,
			Database: "potentiostat_iot",
			User:     "postgres",
			MaxConns: 20,
		},
		HTTP: HTTPConfig{
			Addr: ":3000",
		},
		Retention: RetentionConfig{
			Enabled:  false,
			MaxAge:   90,
			Interval: 24 * time.Hour,
		},
		LogLevel: "info",
	}
}

// Load reads the configuration. A .env file next to the working directory is
// loaded first when present, then the YAML file (when path is non-empty),
// then environment overrides. Missing file with an explicit path is an error;
// an empty path means defaults plus environment only.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load", "read config file")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load", "parse config file")
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("NATS_USERNAME"); v != "" {
		cfg.NATS.Username = v
	}
	if v := os.Getenv("NATS_PASSWORD"); v != "" {
		cfg.NATS.Password = v
	}
	if v := os.Getenv("NATS_TOKEN"); v != "" {
		cfg.NATS.Token = v
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.Database.Database = v
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.HTTP.Addr = ":" + v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.NATS.URL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "config", "Validate", "nats url")
	}
	if c.NATS.MaxReconnects < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("maxReconnects must not be negative, got %d", c.NATS.MaxReconnects),
			"config", "Validate", "nats reconnects")
	}
	if c.NATS.ReconnectWait < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("reconnectWait must not be negative, got %v", c.NATS.ReconnectWait),
			"config", "Validate", "nats reconnect wait")
	}
	if c.Database.Port < 0 || c.Database.Port > 65535 {
		return errors.WrapInvalid(
			fmt.Errorf("database port out of range: %d", c.Database.Port),
			"config", "Validate", "database port")
	}
	if c.HTTP.Addr == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "config", "Validate", "http addr")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.WrapInvalid(
			fmt.Errorf("unknown log level %q", c.LogLevel),
			"config", "Validate", "log level")
	}
	if c.Retention.Enabled {
		if c.Retention.MaxAge <= 0 {
			return errors.WrapInvalid(
				fmt.Errorf("retention maxAgeDays must be positive, got %d", c.Retention.MaxAge),
				"config", "Validate", "retention age")
		}
		if c.Retention.Interval <= 0 {
			return errors.WrapInvalid(
				fmt.Errorf("retention interval must be positive, got %v", c.Retention.Interval),
				"config", "Validate", "retention interval")
		}
	}
	return nil
}
