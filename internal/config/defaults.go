package config

import (
	"strings"
	"time"
)

// DefaultConfig returns a Config populated entirely with defaults, the
// configuration a fresh `nfs41ctl config init` writes out.
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills in any zero-valued fields with their defaults.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
	applyRecoveryDefaults(&cfg.Recovery)
	applyIdmapDefaults(&cfg.Idmap)
	applyClientDefaults(&cfg.Client)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "nfs41daemon"
	}
	if cfg.ServiceVersion == "" {
		cfg.ServiceVersion = "dev"
	}
	if cfg.Profiling.Endpoint == "" {
		cfg.Profiling.Endpoint = "http://localhost:4040"
	}
	if len(cfg.Profiling.ProfileTypes) == 0 {
		cfg.Profiling.ProfileTypes = []string{"cpu", "alloc_objects", "inuse_space", "goroutines"}
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyRecoveryDefaults(cfg *RecoveryConfig) {
	if cfg.Dir == "" {
		cfg.Dir = "/var/lib/nfs41daemon/recovery"
	}
}

func applyIdmapDefaults(cfg *IdmapConfig) {
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
}

func applyClientDefaults(cfg *ClientConfig) {
	if cfg.MaxSupersedeRetries == 0 {
		cfg.MaxSupersedeRetries = 4
	}
	if cfg.MaxRetryDeleteAttempts == 0 {
		cfg.MaxRetryDeleteAttempts = 2
	}
}
