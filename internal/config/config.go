// Package config loads the limbic configuration file.
//
// Every engine owns its own Config struct and defaults; this package only
// aggregates them, reads ~/.limbic/config.yaml through viper and applies
// LIMBIC_* environment overrides. A missing file is written out with the
// defaults so it can be edited in place.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/normanking/limbic/internal/bus"
	"github.com/normanking/limbic/internal/dispatch"
	"github.com/normanking/limbic/internal/engine"
	"github.com/normanking/limbic/internal/logging"
	"github.com/normanking/limbic/internal/persistence"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// EnvPrefix is the prefix of environment overrides, e.g.
// LIMBIC_BOREDOM_BASE_GROWTH_RATE.
const EnvPrefix = "LIMBIC"

// Config holds all limbic configuration. The engine tunables sit at the top
// level of the file.
type Config struct {
	engine.Config `mapstructure:",squash" yaml:",inline"`

	Logging  logging.Config       `mapstructure:"logging" yaml:"logging"`
	Snapshot persistence.Config   `mapstructure:"snapshot" yaml:"snapshot"`
	Dispatch dispatch.RedisConfig `mapstructure:"dispatch" yaml:"dispatch"`
	Observer bus.ObserverConfig   `mapstructure:"observer" yaml:"observer"`
	Metrics  MetricsConfig        `mapstructure:"metrics" yaml:"metrics"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics. Empty disables the endpoint.
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// Default returns a Config with every section at its defaults. Memory is
// kept durable in ~/.limbic/memory.db.
func Default() *Config {
	cfg := &Config{
		Config:   engine.DefaultConfig(),
		Logging:  logging.DefaultConfig(),
		Snapshot: persistence.DefaultConfig(),
		Dispatch: dispatch.DefaultRedisConfig(),
		Observer: bus.DefaultObserverConfig(),
	}
	cfg.Memory.Path = "~/.limbic/memory.db"
	return cfg
}

// DefaultPath returns ~/.limbic/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".limbic", "config.yaml"), nil
}

// Load reads the configuration from the default path.
func Load() (*Config, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath reads the configuration at path, creating it with the
// defaults if it does not exist. The result is validated.
func LoadFromPath(path string) (*Config, error) {
	path = expandPath(path)

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := Default().SaveToPath(path); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
	}

	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return decode(v)
}

// Watch reloads the file at path whenever it changes and hands every valid
// result to onChange. Invalid edits are logged and ignored. onChange runs on
// the watcher goroutine; callers forward the config to their own loop.
func Watch(path string, log zerolog.Logger, onChange func(*Config)) error {
	path = expandPath(path)
	log = logging.Component(log, "config")

	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			log.Warn().Err(err).Str("file", e.Name).Msg("ignoring invalid config change")
			return
		}
		log.Info().Str("file", e.Name).Msg("config reloaded")
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

// SaveToPath writes c as YAML, creating the directory if needed.
func (c *Config) SaveToPath(path string) error {
	path = expandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Config.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Snapshot.Validate(); err != nil {
		return fmt.Errorf("%w: snapshot: %w", ErrInvalidConfig, err)
	}
	if err := c.Dispatch.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("%w: invalid log level %q, must be one of: debug, info, warn, error", ErrInvalidConfig, c.Logging.Level)
	}
	if c.Observer.HistoryCount < 0 {
		return fmt.Errorf("%w: observer.history_count must not be negative", ErrInvalidConfig)
	}
	return nil
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// LIMBIC_MEMORY_PATH overrides memory.path
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// decode unmarshals over the defaults, so keys missing from the file keep
// their default values.
func decode(v *viper.Viper) (*Config, error) {
	cfg := Default()
	// lists in the file replace the defaults instead of merging by index
	if v.IsSet("chain.definitions") {
		cfg.Chain.Definitions = nil
	}
	if v.IsSet("emotion.reactions") {
		cfg.Emotion.Reactions = nil
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Logging.FilePath = expandPath(cfg.Logging.FilePath)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[1:])
	}
	return path
}
