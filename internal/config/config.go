// Package config loads and validates application configuration from YAML
// files and environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Renderer      RendererConfig      `yaml:"renderer"`
	Catalog       CatalogConfig       `yaml:"catalog"`
	Sessions      SessionStoreConfig  `yaml:"sessions"`
	Idempotency   IdempotencyConfig   `yaml:"idempotency"`
	AdminAuth     AdminAuthConfig     `yaml:"admin_auth"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig describes HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	CORS            CORSConfig    `yaml:"cors"`
}

// CORSConfig describes Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"`
}

// RendererConfig describes the generative rendering service binding. The
// API key is read from the environment variable named by api_key_env and is
// never stored in the config file or shipped to clients.
type RendererConfig struct {
	BaseURL        string               `yaml:"base_url"`
	Model          string               `yaml:"model"`
	APIKeyEnv      string               `yaml:"api_key_env"`
	Timeout        time.Duration        `yaml:"timeout"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Retry          RetryConfig          `yaml:"retry"`
}

// CircuitBreakerConfig describes circuit breaker settings for the renderer.
type CircuitBreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
}

// RetryConfig describes retry settings for side-effect-free renderer calls.
type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	BackoffInitial    time.Duration `yaml:"backoff_initial"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	BackoffMax        time.Duration `yaml:"backoff_max"`
}

// CatalogConfig describes where to find catalog seed YAML files.
type CatalogConfig struct {
	SeedDirectories []string `yaml:"seed_directories"`
}

// SessionStoreConfig describes session persistence settings.
type SessionStoreConfig struct {
	Driver          string        `yaml:"driver"`
	DSNEnv          string        `yaml:"dsn_env"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// IdempotencyConfig describes simulate-request deduplication settings.
type IdempotencyConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Driver     string        `yaml:"driver"`
	AddrEnv    string        `yaml:"addr_env"`
	DB         int           `yaml:"db"`
	DefaultTTL time.Duration `yaml:"default_ttl"`
}

// AdminAuthConfig describes JWT verification for the catalog admin routes.
type AdminAuthConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Issuer       string        `yaml:"issuer"`
	Audience     string        `yaml:"audience"`
	JWKSURL      string        `yaml:"jwks_url"`
	JWKSCacheTTL time.Duration `yaml:"jwks_cache_ttl"`
	Algorithms   []string      `yaml:"algorithms"`

	// RequiredScope is the token scope that grants catalog writes.
	RequiredScope string `yaml:"required_scope"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel string        `yaml:"log_level"`
	Tracing  TracingConfig `yaml:"tracing"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// TracingConfig describes distributed tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			HandlerTimeout:  110 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxUploadBytes:  10 << 20,
			CORS: CORSConfig{
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"Authorization", "Content-Type",
					"X-Correlation-Id", "X-Idempotency-Key"},
				MaxAge: 86400,
			},
		},
		Renderer: RendererConfig{
			Model:     "scene-composer-2",
			APIKeyEnv: "SHADEVIEW_RENDERER_API_KEY",
			Timeout:   60 * time.Second,
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold: 5,
				SuccessThreshold: 2,
				Timeout:          30 * time.Second,
			},
			Retry: RetryConfig{
				MaxAttempts:       2,
				BackoffInitial:    500 * time.Millisecond,
				BackoffMultiplier: 2,
				BackoffMax:        5 * time.Second,
			},
		},
		Catalog: CatalogConfig{
			SeedDirectories: []string{"/catalog"},
		},
		Sessions: SessionStoreConfig{
			Driver:          "memory",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Idempotency: IdempotencyConfig{
			Driver:     "memory",
			DefaultTTL: 10 * time.Minute,
		},
		AdminAuth: AdminAuthConfig{
			JWKSCacheTTL:  1 * time.Hour,
			Algorithms:    []string{"RS256"},
			RequiredScope: "catalog:write",
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
			Tracing: TracingConfig{
				Exporter:     "otlp",
				SamplingRate: 0.1,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// Load reads a YAML config file, applies environment variable overrides,
// and validates required fields.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required fields are present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if c.Renderer.BaseURL == "" {
		errs = append(errs, "renderer.base_url is required")
	}
	if c.Renderer.APIKeyEnv == "" {
		errs = append(errs, "renderer.api_key_env is required")
	}
	switch c.Sessions.Driver {
	case "memory", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("sessions.driver %q must be memory or postgres", c.Sessions.Driver))
	}
	switch c.Idempotency.Driver {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Sprintf("idempotency.driver %q must be memory or redis", c.Idempotency.Driver))
	}
	if c.AdminAuth.Enabled {
		if c.AdminAuth.Issuer == "" {
			errs = append(errs, "admin_auth.issuer is required when admin auth is enabled")
		}
		if c.AdminAuth.JWKSURL == "" {
			errs = append(errs, "admin_auth.jwks_url is required when admin auth is enabled")
		}
		if c.AdminAuth.Audience == "" {
			errs = append(errs, "admin_auth.audience is required when admin auth is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// applyEnvOverrides reads SHADEVIEW_* environment variables and overrides
// config values. Only the most commonly overridden fields are supported.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SHADEVIEW_SERVER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SHADEVIEW_RENDERER_BASE_URL"); v != "" {
		cfg.Renderer.BaseURL = v
	}
	if v := os.Getenv("SHADEVIEW_RENDERER_MODEL"); v != "" {
		cfg.Renderer.Model = v
	}
	if v := os.Getenv("SHADEVIEW_SESSIONS_DRIVER"); v != "" {
		cfg.Sessions.Driver = v
	}
	if v := os.Getenv("SHADEVIEW_OBSERVABILITY_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
}
