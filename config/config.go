// Package config provides layered configuration for the relayd daemon.
//
// Configuration is loaded in this order:
//  1. Built-in defaults
//  2. Config file, YAML or TOML (discovered or explicitly specified)
//  3. Environment variable overrides (RELAY_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import (
	"fmt"
	"time"
)

// Transport names accepted in server.transport.
const (
	TransportStdio     = "stdio"
	TransportHTTP      = "http"
	TransportWebSocket = "websocket"
)

// Config holds all configuration for relayd.
type Config struct {
	Server        ServerConfig        `yaml:"server" toml:"server"`
	Middleware    MiddlewareConfig    `yaml:"middleware" toml:"middleware"`
	Logging       LoggingConfig       `yaml:"logging" toml:"logging"`
	Observability ObservabilityConfig `yaml:"observability" toml:"observability"`
}

// ServerConfig holds transport settings.
type ServerConfig struct {
	Transport    string         `yaml:"transport" toml:"transport"`           // "stdio", "http" or "websocket", default: "http"
	Addr         string         `yaml:"addr" toml:"addr"`                     // default: ":8080"
	Path         string         `yaml:"path" toml:"path"`                     // default: transport specific
	ReadTimeout  Duration       `yaml:"read_timeout" toml:"read_timeout"`     // default: 30s
	WriteTimeout Duration       `yaml:"write_timeout" toml:"write_timeout"`   // default: 30s
	MaxBodyBytes int64          `yaml:"max_body_bytes" toml:"max_body_bytes"` // default: 4 MiB
	Shutdown     ShutdownConfig `yaml:"shutdown" toml:"shutdown"`
	CORS         CORSConfig     `yaml:"cors" toml:"cors"`
}

// ShutdownConfig holds graceful shutdown settings.
type ShutdownConfig struct {
	Timeout    Duration `yaml:"timeout" toml:"timeout"`         // default: 30s
	DrainDelay Duration `yaml:"drain_delay" toml:"drain_delay"` // default: 0
}

// CORSConfig holds HTTP CORS settings.
type CORSConfig struct {
	Enabled          bool     `yaml:"enabled" toml:"enabled"`
	AllowOrigins     []string `yaml:"allow_origins" toml:"allow_origins"`
	AllowCredentials bool     `yaml:"allow_credentials" toml:"allow_credentials"`
}

// MiddlewareConfig selects and tunes the entries of the dispatch pipeline.
type MiddlewareConfig struct {
	Timeout   Duration        `yaml:"timeout" toml:"timeout"`       // 0 disables
	SizeLimit int64           `yaml:"size_limit" toml:"size_limit"` // params bytes, 0 disables
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Echo      bool            `yaml:"echo" toml:"echo"` // answer the echo method
}

// RateLimitConfig holds token bucket settings.
type RateLimitConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Rate    int    `yaml:"rate" toml:"rate"`   // tokens per second, default: 100
	Burst   int    `yaml:"burst" toml:"burst"` // default: 200
	By      string `yaml:"by" toml:"by"`       // "global", "method" or "client", default: "global"
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	Type        string         `yaml:"type" toml:"type"` // "none", "apikey" or "jwt", default: "none"
	APIKeys     []APIKeyConfig `yaml:"api_keys" toml:"api_keys"`
	JWT         JWTConfig      `yaml:"jwt" toml:"jwt"`
	SkipMethods []string       `yaml:"skip_methods" toml:"skip_methods"`
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key     string `yaml:"key" toml:"key"`
	KeyFile string `yaml:"key_file" toml:"key_file"` // _file variant for key
	Subject string `yaml:"subject" toml:"subject"`
	Name    string `yaml:"name" toml:"name"`
}

// JWTConfig holds HMAC JWT verification settings.
type JWTConfig struct {
	Secret     string `yaml:"secret" toml:"secret"`
	SecretFile string `yaml:"secret_file" toml:"secret_file"` // _file variant for secret
	Issuer     string `yaml:"issuer" toml:"issuer"`
	Audience   string `yaml:"audience" toml:"audience"`
}

// LoggingConfig holds zap and log rotation settings.
type LoggingConfig struct {
	Level      string `yaml:"level" toml:"level"`             // default: "info"
	Encoding   string `yaml:"encoding" toml:"encoding"`       // "json" or "console", default: "json"
	File       string `yaml:"file" toml:"file"`               // empty logs to stderr
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"` // default: 100
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"` // default: 3
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"`
	Compress   bool   `yaml:"compress" toml:"compress"`
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics"`
	Tracing TracingConfig `yaml:"tracing" toml:"tracing"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`     // default: true
	Path      string `yaml:"path" toml:"path"`           // default: "/metrics"
	Namespace string `yaml:"namespace" toml:"namespace"` // default: "relay"

	// MaxMethods caps distinct method label values. default: 100
	MaxMethods int `yaml:"max_methods" toml:"max_methods"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled" toml:"enabled"`
	ServiceName string `yaml:"service_name" toml:"service_name"` // default: "relay"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Transport:    TransportHTTP,
			Addr:         ":8080",
			ReadTimeout:  Duration(30 * time.Second),
			WriteTimeout: Duration(30 * time.Second),
			MaxBodyBytes: 4 << 20,
			Shutdown: ShutdownConfig{
				Timeout: Duration(30 * time.Second),
			},
		},
		Middleware: MiddlewareConfig{
			SizeLimit: 1 << 20,
			RateLimit: RateLimitConfig{
				Rate:  100,
				Burst: 200,
				By:    "global",
			},
			Auth: AuthConfig{
				Type: "none",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Encoding:   "json",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled:    true,
				Path:       "/metrics",
				Namespace:  "relay",
				MaxMethods: 100,
			},
			Tracing: TracingConfig{
				ServiceName: "relay",
			},
		},
	}
}

// Duration is a time.Duration that reads "30s" style strings from YAML,
// TOML and environment variables.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// String returns the time.Duration form of d.
func (d Duration) String() string { return time.Duration(d).String() }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}
