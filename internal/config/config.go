package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config holds everything the server needs at startup
type Config struct {
	Env             string         `yaml:"env"`
	Debug           bool           `yaml:"debug"`
	Port            string         `yaml:"port"`
	ShutdownTimeout time.Duration  `yaml:"shutdown_timeout"`
	Database        DatabaseConfig `yaml:"database"`
	RateLimits      RateLimits     `yaml:"rate_limits"`
}

type DatabaseConfig struct {
	Driver         string        `yaml:"driver"` // sqlite or postgres
	DSN            string        `yaml:"dsn"`
	MaxOpenConns   int           `yaml:"max_open_conns"`
	MaxIdleConns   int           `yaml:"max_idle_conns"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// RateLimits are requests per minute per caller and route family. Zero disables the limit.
type RateLimits struct {
	Orders     float64 `yaml:"orders"`
	Watchlists float64 `yaml:"watchlists"`
	Reference  float64 `yaml:"reference"`
	Internal   float64 `yaml:"internal"`
	Burst      int     `yaml:"burst"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Env:             "development",
		Port:            "8080",
		ShutdownTimeout: 5 * time.Second,
		Database: DatabaseConfig{
			Driver:         "sqlite",
			DSN:            "brokerage.db",
			MaxOpenConns:   10,
			MaxIdleConns:   2,
			ConnectTimeout: 30 * time.Second,
		},
		RateLimits: RateLimits{
			Orders:     100,
			Watchlists: 300,
			Reference:  1000,
			Burst:      10,
		},
	}
}

// Load reads .env, then the yaml file at filePath (or CONFIG_FILE), then environment overrides.
// A missing .env or an empty path is not an error.
func Load(filePath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if filePath == "" {
		filePath = os.Getenv("CONFIG_FILE")
	}

	cfg := Default()
	if filePath != "" {
		logger := log.With().Str("func", "config.Load").Str("file_path", filePath).Logger()
		logger.Debug().Msg("loading config file")

		configBytes, err := os.ReadFile(filePath)
		if err != nil {
			logger.Error().Err(err).Msg("failed to read config file")
			return nil, err
		}
		configBytes = []byte(os.ExpandEnv(string(configBytes)))

		if err := yaml.Unmarshal(configBytes, cfg); err != nil {
			logger.Error().Err(err).Msg("failed to parse config file")
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("ENV"); v != "" {
		c.Env = v
	}
	if v := os.Getenv("DEBUG"); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid DEBUG value %q: %w", v, err)
		}
		c.Debug = debug
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Port = v
	}
	if v := os.Getenv("DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		c.Database.DSN = v
	}
	return nil
}

// Validate rejects configurations the server cannot start with
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database dsn is required")
	}
	if c.Port == "" {
		return errors.New("port is required")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
