// Package config loads connection settings from a config file, .env files
// and STRATA_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/lib/pq"
	"github.com/spf13/viper"

	"github.com/coregx/strata/internal/dialects"
	"github.com/coregx/strata/internal/logger"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "STRATA"

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds the settings needed to open a database.
type Config struct {
	Driver            string        `mapstructure:"driver"`
	DSN               string        `mapstructure:"dsn"`
	MaxOpenConns      int           `mapstructure:"max_open_conns"`
	MaxIdleConns      int           `mapstructure:"max_idle_conns"`
	StmtCacheCapacity int           `mapstructure:"stmt_cache_capacity"`
	LogLevel          string        `mapstructure:"log_level"`
	SensitiveFields   []string      `mapstructure:"sensitive_fields"`
	ValidateRaw       bool          `mapstructure:"validate_raw"`
	HealthCheck       time.Duration `mapstructure:"health_check"`
}

// LoadOptions controls where Load looks for settings.
type LoadOptions struct {
	// ConfigFile is read when set. Its absence is an error.
	ConfigFile string
	// EnvFiles are loaded in order without overriding variables already
	// set. Missing files are skipped.
	EnvFiles []string
	// Overrides win over every other source. Empty strings are ignored.
	Overrides map[string]any
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("driver", "sqlite")
	v.SetDefault("dsn", "")
	v.SetDefault("max_open_conns", 0)
	v.SetDefault("max_idle_conns", 0)
	v.SetDefault("stmt_cache_capacity", 1000)
	v.SetDefault("log_level", "")
	v.SetDefault("sensitive_fields", []string{})
	v.SetDefault("validate_raw", false)
	v.SetDefault("health_check", time.Duration(0))
	return v
}

// Load reads the configuration. Precedence, highest first: environment,
// .env files, config file, defaults.
func Load(opts LoadOptions) (*Config, error) {
	for _, f := range opts.EnvFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	v := newViper()
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	for key, val := range opts.Overrides {
		if s, ok := val.(string); ok && s == "" {
			continue
		}
		v.Set(key, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	// AutomaticEnv hands list values over as one string.
	if len(cfg.SensitiveFields) == 1 && strings.Contains(cfg.SensitiveFields[0], ",") {
		cfg.SensitiveFields = splitList(cfg.SensitiveFields[0])
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Dialect returns the canonical dialect name of the driver.
func (c *Config) Dialect() string {
	d, ok := dialects.LookupDialect(c.Driver)
	if !ok {
		return ""
	}
	return d.Name()
}

// Validate checks the driver, the DSN format for mysql and postgres URLs,
// the pool sizes and the log level.
func (c *Config) Validate() error {
	if c.Driver == "" {
		return fmt.Errorf("%w: driver is required", ErrInvalidConfig)
	}
	name := c.Dialect()
	if name == "" {
		return fmt.Errorf("%w: unsupported driver %q", ErrInvalidConfig, c.Driver)
	}
	if c.DSN == "" {
		return fmt.Errorf("%w: dsn is required", ErrInvalidConfig)
	}
	switch name {
	case "mysql":
		if _, err := mysql.ParseDSN(c.DSN); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	case "postgres":
		if strings.HasPrefix(c.DSN, "postgres://") || strings.HasPrefix(c.DSN, "postgresql://") {
			if _, err := pq.ParseURL(c.DSN); err != nil {
				return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
			}
		}
	}
	if c.MaxOpenConns < 0 || c.MaxIdleConns < 0 {
		return fmt.Errorf("%w: connection limits cannot be negative", ErrInvalidConfig)
	}
	if c.StmtCacheCapacity < 0 {
		return fmt.Errorf("%w: stmt_cache_capacity cannot be negative", ErrInvalidConfig)
	}
	if c.LogLevel != "" {
		if _, err := logger.ParseLevel(c.LogLevel); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	return nil
}
