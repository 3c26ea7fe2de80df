// Package config loads flyby-db settings from defaults, an optional config
// file and the environment using Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/signalsfoundry/flyby/internal/logging"
	"github.com/signalsfoundry/flyby/internal/observability"
	"github.com/signalsfoundry/flyby/internal/searchpath"
	"github.com/signalsfoundry/flyby/internal/transponderdb"
)

const (
	// AppName names the configuration directory.
	AppName = "flyby"
	// ConfigFileName is the config file name without extension.
	ConfigFileName = "flyby-db"
	// EnvPrefix prefixes every environment override, e.g. FLYBY_LOG_LEVEL.
	EnvPrefix = "FLYBY"
)

// ErrInvalidConfig is returned when a loaded value is out of range.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete runtime configuration.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing"`
	DB      DBConfig      `mapstructure:"db"`
	TLE     TLEConfig     `mapstructure:"tle"`
	Paths   PathsConfig   `mapstructure:"paths"`
}

type LogConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	AddSource bool   `mapstructure:"add_source"`
}

type MetricsConfig struct {
	// Addr enables a Prometheus /metrics endpoint when non-empty.
	Addr string `mapstructure:"addr"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Exporter    string  `mapstructure:"exporter"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

type DBConfig struct {
	// MaxTransponders bounds the transponders kept per satellite; 0 is
	// unlimited.
	MaxTransponders int `mapstructure:"max_transponders"`
}

type TLEConfig struct {
	// File replaces search path discovery with a single TLE file.
	File string `mapstructure:"file"`
}

// PathsConfig carries the XDG variables the search paths derive from.
type PathsConfig struct {
	DataHome string `mapstructure:"data_home"`
	DataDirs string `mapstructure:"data_dirs"`
	Home     string `mapstructure:"home"`
}

// LoadOptions selects where the config file comes from.
type LoadOptions struct {
	// ConfigFile is used exclusively when set and must exist.
	ConfigFile string
	// ConfigDir overrides the directory searched for flyby-db.{toml,yaml}.
	ConfigDir string
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() Config {
	return Config{
		Log: LogConfig{Level: "info", Format: "pretty"},
		Tracing: TracingConfig{
			ServiceName: "flyby-db",
			Exporter:    "stdout",
			SampleRatio: 1.0,
		},
	}
}

// Dir returns $XDG_CONFIG_HOME/flyby, defaulting to ~/.config/flyby.
func Dir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, AppName), nil
}

// Load resolves the configuration. It returns the config and the path of the
// file that was read, or "" when only defaults and the environment applied.
func Load(opts LoadOptions) (*Config, string, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.format", defaults.Log.Format)
	v.SetDefault("log.add_source", defaults.Log.AddSource)
	v.SetDefault("metrics.addr", defaults.Metrics.Addr)
	v.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	v.SetDefault("tracing.service_name", defaults.Tracing.ServiceName)
	v.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	v.SetDefault("tracing.endpoint", defaults.Tracing.Endpoint)
	v.SetDefault("tracing.sample_ratio", defaults.Tracing.SampleRatio)
	v.SetDefault("db.max_transponders", defaults.DB.MaxTransponders)
	v.SetDefault("tle.file", defaults.TLE.File)
	v.SetDefault("paths.data_home", "")
	v.SetDefault("paths.data_dirs", "")
	v.SetDefault("paths.home", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, envs := range map[string][]string{
		"tracing.endpoint": {"FLYBY_TRACING_ENDPOINT", "FLYBY_OTLP_ENDPOINT"},
		"paths.data_home":  {"XDG_DATA_HOME"},
		"paths.data_dirs":  {"XDG_DATA_DIRS"},
		"paths.home":       {"HOME"},
	} {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, "", fmt.Errorf("bind %s: %w", key, err)
		}
	}

	resolved, err := readConfigFile(v, opts)
	if err != nil {
		return nil, "", err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)
	cfg.Tracing.Exporter = strings.ToLower(cfg.Tracing.Exporter)
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return &cfg, resolved, nil
}

func readConfigFile(v *viper.Viper, opts LoadOptions) (string, error) {
	if opts.ConfigFile != "" {
		if _, err := os.Stat(opts.ConfigFile); err != nil {
			return "", fmt.Errorf("config file %s: %w", opts.ConfigFile, err)
		}
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return "", fmt.Errorf("failed to read config %s: %w", opts.ConfigFile, err)
		}
		return opts.ConfigFile, nil
	}

	dir := opts.ConfigDir
	if dir == "" {
		var err error
		if dir, err = Dir(); err != nil {
			return "", err
		}
	}
	v.SetConfigName(ConfigFileName)
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read config in %s: %w", dir, err)
	}
	return v.ConfigFileUsed(), nil
}

// Validate checks enumerated and ranged values.
func (c Config) Validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: log.level %q", ErrInvalidConfig, c.Log.Level)
	}
	switch c.Log.Format {
	case "pretty", "text", "json":
	default:
		return fmt.Errorf("%w: log.format %q", ErrInvalidConfig, c.Log.Format)
	}
	switch c.Tracing.Exporter {
	case "stdout", "otlp":
	default:
		return fmt.Errorf("%w: tracing.exporter %q", ErrInvalidConfig, c.Tracing.Exporter)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("%w: tracing.sample_ratio %v outside [0, 1]", ErrInvalidConfig, c.Tracing.SampleRatio)
	}
	if c.DB.MaxTransponders < 0 {
		return fmt.Errorf("%w: db.max_transponders %d is negative", ErrInvalidConfig, c.DB.MaxTransponders)
	}
	if err := c.SearchEnv().Check(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Logging converts the log section for logging.New.
func (c Config) Logging() logging.Config {
	return logging.Config{
		Level:     c.Log.Level,
		Format:    c.Log.Format,
		AddSource: c.Log.AddSource,
	}
}

// TracingSettings converts the tracing section for observability.InitTracing.
func (c Config) TracingSettings() observability.TracingConfig {
	return observability.TracingConfig{
		Enabled:     c.Tracing.Enabled,
		ServiceName: c.Tracing.ServiceName,
		Exporter:    c.Tracing.Exporter,
		Endpoint:    c.Tracing.Endpoint,
		SampleRatio: c.Tracing.SampleRatio,
	}
}

// SearchEnv returns the environment the database search paths derive from.
func (c Config) SearchEnv() searchpath.Env {
	return searchpath.Env{
		DataHome: c.Paths.DataHome,
		DataDirs: c.Paths.DataDirs,
		Home:     c.Paths.Home,
	}
}

// ParseOptions returns the transponder parser limits.
func (c Config) ParseOptions() transponderdb.ParseOptions {
	return transponderdb.ParseOptions{MaxTransponders: c.DB.MaxTransponders}
}
