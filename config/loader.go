package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// EnvConfig names the environment variable holding the config file path.
const EnvConfig = "RELAY_CONFIG"

// Load loads configuration from a layered set of sources.
//
// The file is discovered in this order: explicit configPath, RELAY_CONFIG,
// ./relay.yaml, ./relay.toml, /etc/relay/relay.yaml. Files ending in
// ".toml" are decoded as TOML, anything else as YAML.
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	if path := discoverConfigFile(configPath); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv(EnvConfig); envPath != "" {
		return envPath
	}

	candidates := []string{
		"relay.yaml",
		"relay.toml",
		"/etc/relay/relay.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadFile decodes path into cfg. Fields absent from the file keep their
// current values.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return toml.Unmarshal(data, cfg)
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"RELAY_TRANSPORT":    &cfg.Server.Transport,
		"RELAY_ADDR":         &cfg.Server.Addr,
		"RELAY_PATH":         &cfg.Server.Path,
		"RELAY_AUTH_TYPE":    &cfg.Middleware.Auth.Type,
		"RELAY_JWT_SECRET":   &cfg.Middleware.Auth.JWT.Secret,
		"RELAY_JWT_ISSUER":   &cfg.Middleware.Auth.JWT.Issuer,
		"RELAY_LOG_LEVEL":    &cfg.Logging.Level,
		"RELAY_LOG_ENCODING": &cfg.Logging.Encoding,
		"RELAY_LOG_FILE":     &cfg.Logging.File,
		"RELAY_SERVICE_NAME": &cfg.Observability.Tracing.ServiceName,
	}
	for name, dst := range strs {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	durations := map[string]*Duration{
		"RELAY_TIMEOUT":          &cfg.Middleware.Timeout,
		"RELAY_SHUTDOWN_TIMEOUT": &cfg.Server.Shutdown.Timeout,
	}
	for name, dst := range durations {
		if v := os.Getenv(name); v != "" {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
		}
	}

	bools := map[string]*bool{
		"RELAY_METRICS_ENABLED": &cfg.Observability.Metrics.Enabled,
		"RELAY_TRACING_ENABLED": &cfg.Observability.Tracing.Enabled,
		"RELAY_ECHO":            &cfg.Middleware.Echo,
	}
	for name, dst := range bools {
		if v := os.Getenv(name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*dst = b
		}
	}

	// RELAY_RATE_LIMIT enables rate limiting at the given rate.
	if v := os.Getenv("RELAY_RATE_LIMIT"); v != "" {
		rate, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RELAY_RATE_LIMIT: %w", err)
		}
		cfg.Middleware.RateLimit.Enabled = rate > 0
		cfg.Middleware.RateLimit.Rate = rate
	}

	// RELAY_API_KEYS: JSON array of API key entries.
	if v := os.Getenv("RELAY_API_KEYS"); v != "" {
		var keys []APIKeyConfig
		if err := json.Unmarshal([]byte(v), &keys); err != nil {
			return fmt.Errorf("RELAY_API_KEYS: %w", err)
		}
		cfg.Middleware.Auth.APIKeys = keys
	}

	return nil
}

// resolveFileReferences fills empty secret fields from their _file variant.
func resolveFileReferences(cfg *Config) error {
	jwtCfg := &cfg.Middleware.Auth.JWT
	if jwtCfg.SecretFile != "" && jwtCfg.Secret == "" {
		val, err := readSecretFile(jwtCfg.SecretFile)
		if err != nil {
			return fmt.Errorf("middleware.auth.jwt.secret_file: %w", err)
		}
		jwtCfg.Secret = val
	}

	for i := range cfg.Middleware.Auth.APIKeys {
		key := &cfg.Middleware.Auth.APIKeys[i]
		if key.KeyFile != "" && key.Key == "" {
			val, err := readSecretFile(key.KeyFile)
			if err != nil {
				return fmt.Errorf("middleware.auth.api_keys[%d].key_file: %w", i, err)
			}
			key.Key = val
		}
	}

	return nil
}

func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
