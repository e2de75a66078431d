package tn_creddigest

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by LoadConfig.
const EnvPrefix = "CREDDIGEST_"

// Config holds node-local settings of the registry binary.
type Config struct {
	// DBPath is the SQLite file backing the registry. Empty keeps everything in
	// memory for the lifetime of the process.
	DBPath         string        `env:"DB_PATH" mapstructure:"db_path"`
	LogLevel       string        `env:"LOG_LEVEL" mapstructure:"log_level"`
	ListenAddr     string        `env:"LISTEN_ADDR" mapstructure:"listen_addr"`
	BusyTimeout    time.Duration `env:"BUSY_TIMEOUT" mapstructure:"busy_timeout"`
	MetricsEnabled bool          `env:"METRICS_ENABLED" mapstructure:"metrics_enabled"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		LogLevel:       "info",
		ListenAddr:     ":8080",
		BusyTimeout:    DefaultBusyTimeout,
		MetricsEnabled: true,
	}
}

// LoadConfig builds the configuration in three layers: defaults, then the
// optional YAML file at path, then CREDDIGEST_* environment variables.
func LoadConfig(path string) (Config, error) {
	return loadConfig(path, nil)
}

// loadConfig reads environment from environ when non-nil, os.Environ otherwise.
func loadConfig(path string, environ map[string]string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}

		values := map[string]any{}
		if err := yaml.Unmarshal(raw, &values); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
		if err := DecodeConfigMap(values, &cfg); err != nil {
			return cfg, fmt.Errorf("decode config file %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{
		Prefix:      EnvPrefix,
		Environment: environ,
	}); err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// DecodeConfigMap overlays loosely typed values (strings, numbers, bools) onto
// cfg. Unknown keys are rejected so typos do not pass silently.
func DecodeConfigMap(values map[string]any, cfg *Config) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		TagName:          "mapstructure",
		Result:           cfg,
	})
	if err != nil {
		return fmt.Errorf("build config decoder: %w", err)
	}
	return decoder.Decode(values)
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if _, err := zapcore.ParseLevel(strings.TrimSpace(c.LogLevel)); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	if c.BusyTimeout < 0 {
		return fmt.Errorf("busy_timeout cannot be negative, got %s", c.BusyTimeout)
	}
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("listen_addr cannot be empty")
	}
	return nil
}
