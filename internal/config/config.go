// Package config loads the daemon's static configuration from a YAML
// config file, with built-in defaults filling unset fields. NFS41D_*
// environment variables override only keys present in that file; when
// no file is found, Load returns DefaultConfig and reads no environment
// variables. No CLI flags are bound here.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the daemon's full static configuration.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls Pyroscope continuous profiling. There is no
	// distributed-tracing section: the upcall path never leaves this
	// process.
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Recovery configures the BadgerDB-backed open-state snapshot store.
	// On daemon start the stored snapshots are counted and logged; no
	// CLAIM_PREVIOUS open is reissued from them.
	Recovery RecoveryConfig `mapstructure:"recovery" yaml:"recovery"`

	// Idmap configures owner/owner-group string resolution for
	// attributes-only opens.
	Idmap IdmapConfig `mapstructure:"idmap" yaml:"idmap"`

	// Client holds retry bounds for the OPEN/CLOSE drivers. They are
	// loaded and validated only: the drivers use their own
	// MaxSupersedeRetries/MaxRetryDeleteAttempts constants.
	Client ClientConfig `mapstructure:"client" yaml:"client"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

// LoggingConfig controls the logger package's output.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls the telemetry package's Pyroscope profiler.
type TelemetryConfig struct {
	ServiceName    string          `mapstructure:"service_name" yaml:"service_name"`
	ServiceVersion string          `mapstructure:"service_version" yaml:"service_version"`
	Profiling      ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig mirrors telemetry.ProfilingConfig's load shape, minus
// the name/version fields Config.Telemetry already carries.
type ProfilingConfig struct {
	Enabled      bool     `mapstructure:"enabled" yaml:"enabled"`
	Endpoint     string   `mapstructure:"endpoint" yaml:"endpoint"`
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// RecoveryConfig configures the open-state snapshot store.
type RecoveryConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Dir     string `mapstructure:"dir" validate:"required_if=Enabled true" yaml:"dir"`
}

// IdmapConfig configures owner/owner-group string resolution.
type IdmapConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
}

// ClientConfig carries retry bounds matching the OPEN and CLOSE drivers'
// defaults. Nothing passes these values to the drivers, which enforce
// their own package constants.
type ClientConfig struct {
	MaxSupersedeRetries   int `mapstructure:"max_supersede_retries" validate:"omitempty,min=1" yaml:"max_supersede_retries"`
	MaxRetryDeleteAttempts int `mapstructure:"max_retry_delete_attempts" validate:"omitempty,min=1" yaml:"max_retry_delete_attempts"`
}

// Load reads configuration from configPath (or the default XDG
// location if empty), falling back to defaults when no file exists.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		cfg := DefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

// Save writes cfg as YAML to path, creating parent directories as
// needed. Used by `nfs41ctl config init`.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write: %w", err)
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("NFS41D")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(ConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("config: read file: %w", err)
	}
	return true, nil
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// ConfigDir returns the daemon's configuration directory, honoring
// XDG_CONFIG_HOME and falling back to ~/.config, then ".".
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "nfs41daemon")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "nfs41daemon")
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the
// default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(DefaultConfigPath())
	return err == nil
}
