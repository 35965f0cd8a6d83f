// Package config provides YAML configuration loading with validation and
// environment variable substitution for the callguard daemon.
package config

import (
	"fmt"
	"net"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/m-check1B/callguard/internal/circuitbreaker"
)

// Config is the top-level callguard configuration.
type Config struct {
	Server          ServerConfig     `yaml:"server" json:"server"`
	Metrics         MetricsConfig    `yaml:"metrics" json:"metrics"`
	Logging         LoggingConfig    `yaml:"logging" json:"logging"`
	Admin           AdminConfig      `yaml:"admin" json:"admin"`
	BreakerDefaults BreakerSettings  `yaml:"breaker_defaults" json:"breaker_defaults"`
	Providers       []ProviderConfig `yaml:"providers" json:"providers"`

	// Warnings holds non-fatal config issues detected during loading.
	// Stored on the Config itself so concurrent reloads stay race-free.
	Warnings []string `yaml:"-" json:"-"`
}

// ServerConfig holds HTTP server settings for the admin/metrics listener.
type ServerConfig struct {
	Port            int           `yaml:"port" json:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
// Enabled defaults to true; set to false to disable metrics.
type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// IsEnabled returns whether metrics are enabled (defaults to true).
func (m MetricsConfig) IsEnabled() bool {
	if m.Enabled == nil {
		return true
	}
	return *m.Enabled
}

// LoggingConfig holds log output and rotation settings.
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`             // "debug", "info", "warn", "error"; default: "info"
	Output     string `yaml:"output" json:"output"`           // "stdout", "stderr", or file path; default: "stdout"
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"` // max log file size before rotation; default: 100
	MaxBackups int    `yaml:"max_backups" json:"max_backups"` // number of rotated files to keep; default: 3
}

// ValidLogLevels are the accepted log level strings.
var ValidLogLevels = map[string]bool{
	"":      true, // empty means default ("info")
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// AdminConfig holds admin API settings. The admin API is disabled by
// default and, when enabled, guarded by IP allowlist, JWT bearer auth, and
// a per-client rate limit.
type AdminConfig struct {
	Enabled           bool     `yaml:"enabled" json:"enabled"`
	JWTSecret         string   `yaml:"jwt_secret" json:"jwt_secret"`
	Issuer            string   `yaml:"issuer" json:"issuer"`
	Audience          string   `yaml:"audience" json:"audience"`
	IPAllowlist       []string `yaml:"ip_allowlist" json:"ip_allowlist"` // CIDR notation
	RequestsPerSecond float64  `yaml:"requests_per_second" json:"requests_per_second"`
	BurstSize         int      `yaml:"burst_size" json:"burst_size"`
}

// BreakerSettings holds circuit breaker tunables, either as global defaults
// or as a per-provider override.
type BreakerSettings struct {
	FailureThreshold int           `yaml:"failure_threshold" json:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold" json:"success_threshold"`
	Timeout          time.Duration `yaml:"timeout" json:"timeout"`
	HalfOpenMaxCalls int           `yaml:"half_open_max_calls" json:"half_open_max_calls"`
}

// ProviderConfig declares one protected upstream provider.
type ProviderConfig struct {
	// Name identifies the provider's breaker in metrics, logs, and the
	// admin API.
	Name string `yaml:"name" json:"name"`

	// Resource is a free-form label for the protected dependency
	// (e.g. "twilio:voice"). Defaults to Name.
	Resource string `yaml:"resource" json:"resource"`

	// Breaker overrides the global breaker defaults for this provider.
	// Zero fields fall back to the defaults.
	Breaker *BreakerSettings `yaml:"breaker" json:"breaker,omitempty"`
}

// BreakerConfig resolves the effective circuit breaker configuration for a
// provider: per-provider overrides first, then global defaults, then the
// package defaults applied at construction.
func (c *Config) BreakerConfig(p ProviderConfig) circuitbreaker.Config {
	settings := c.BreakerDefaults
	if p.Breaker != nil {
		if p.Breaker.FailureThreshold != 0 {
			settings.FailureThreshold = p.Breaker.FailureThreshold
		}
		if p.Breaker.SuccessThreshold != 0 {
			settings.SuccessThreshold = p.Breaker.SuccessThreshold
		}
		if p.Breaker.Timeout != 0 {
			settings.Timeout = p.Breaker.Timeout
		}
		if p.Breaker.HalfOpenMaxCalls != 0 {
			settings.HalfOpenMaxCalls = p.Breaker.HalfOpenMaxCalls
		}
	}
	return circuitbreaker.Config{
		Name:             p.Name,
		FailureThreshold: settings.FailureThreshold,
		SuccessThreshold: settings.SuccessThreshold,
		Timeout:          settings.Timeout,
		HalfOpenMaxCalls: settings.HalfOpenMaxCalls,
	}
}

// ResourceLabel returns the provider's resource label, defaulting to its name.
func (p ProviderConfig) ResourceLabel() string {
	if p.Resource != "" {
		return p.Resource
	}
	return p.Name
}

var envVarRe = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns in s with the corresponding
// environment variable value.
func expandEnvVars(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		key := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(key); ok {
			return val
		}
		return match
	})
}

// Load reads and parses a YAML configuration file, applies environment
// variable substitution, sets defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses configuration from raw YAML bytes. Useful for testing.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	cfg.Warnings = collectWarnings(&cfg)

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 15 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
	if cfg.Logging.MaxSizeMB == 0 {
		cfg.Logging.MaxSizeMB = 100
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = 3
	}

	if cfg.Admin.RequestsPerSecond == 0 {
		cfg.Admin.RequestsPerSecond = 10
	}
	if cfg.Admin.BurstSize == 0 {
		cfg.Admin.BurstSize = 20
	}

	bd := &cfg.BreakerDefaults
	if bd.FailureThreshold == 0 {
		bd.FailureThreshold = circuitbreaker.DefaultFailureThreshold
	}
	if bd.SuccessThreshold == 0 {
		bd.SuccessThreshold = circuitbreaker.DefaultSuccessThreshold
	}
	if bd.Timeout == 0 {
		bd.Timeout = circuitbreaker.DefaultTimeout
	}
	if bd.HalfOpenMaxCalls == 0 {
		bd.HalfOpenMaxCalls = circuitbreaker.DefaultHalfOpenMaxCalls
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}

	if !ValidLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Output != "stdout" && cfg.Logging.Output != "stderr" {
		if cfg.Logging.MaxSizeMB < 1 {
			return fmt.Errorf("logging.max_size_mb must be positive when output is a file path")
		}
	}

	if cfg.Admin.Enabled {
		if cfg.Admin.JWTSecret == "" {
			return fmt.Errorf("admin.jwt_secret is required when admin is enabled")
		}
		if len(cfg.Admin.IPAllowlist) == 0 {
			return fmt.Errorf("admin.ip_allowlist is required when admin is enabled")
		}
		for i, cidr := range cfg.Admin.IPAllowlist {
			if _, _, err := net.ParseCIDR(cidr); err != nil {
				return fmt.Errorf("admin.ip_allowlist[%d]: invalid CIDR %q: %w", i, cidr, err)
			}
		}
		if cfg.Admin.RequestsPerSecond <= 0 {
			return fmt.Errorf("admin.requests_per_second must be positive")
		}
		if cfg.Admin.BurstSize <= 0 {
			return fmt.Errorf("admin.burst_size must be positive")
		}
	}

	if err := validateBreakerSettings("breaker_defaults", cfg.BreakerDefaults); err != nil {
		return err
	}

	if len(cfg.Providers) == 0 {
		return fmt.Errorf("at least one provider must be configured")
	}

	seen := make(map[string]bool)
	for i, p := range cfg.Providers {
		if p.Name == "" {
			return fmt.Errorf("providers[%d].name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate provider name: %s", p.Name)
		}
		seen[p.Name] = true

		if p.Breaker != nil {
			if err := validateBreakerSettings(fmt.Sprintf("providers[%d].breaker", i), *p.Breaker); err != nil {
				return err
			}
		}
	}

	return nil
}

// validateBreakerSettings rejects negative values. Zeros are allowed: they
// mean "inherit the next level of defaults".
func validateBreakerSettings(field string, s BreakerSettings) error {
	if s.FailureThreshold < 0 {
		return fmt.Errorf("%s.failure_threshold must be non-negative", field)
	}
	if s.SuccessThreshold < 0 {
		return fmt.Errorf("%s.success_threshold must be non-negative", field)
	}
	if s.Timeout < 0 {
		return fmt.Errorf("%s.timeout must be non-negative", field)
	}
	if s.HalfOpenMaxCalls < 0 {
		return fmt.Errorf("%s.half_open_max_calls must be non-negative", field)
	}
	return nil
}

func collectWarnings(cfg *Config) []string {
	var warnings []string
	if cfg.Admin.Enabled && strings.Contains(cfg.Admin.JWTSecret, "${") {
		warnings = append(warnings, "admin.jwt_secret contains unresolved environment variable")
	}
	return warnings
}
