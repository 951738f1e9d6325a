package config

import (
	"errors"
	"fmt"

	"go.uber.org/zap/zapcore"
)

// Validate checks the configuration for required fields and valid values.
// All problems are reported together, each prefixed with its field path.
func (c *Config) Validate() error {
	var errs []error

	switch c.Server.Transport {
	case TransportStdio:
	case TransportHTTP, TransportWebSocket:
		if c.Server.Addr == "" {
			errs = append(errs, fmt.Errorf("server.addr is required for transport %q", c.Server.Transport))
		}
	default:
		errs = append(errs, fmt.Errorf("server.transport must be \"stdio\", \"http\" or \"websocket\", got %q", c.Server.Transport))
	}

	if c.Server.MaxBodyBytes < 0 {
		errs = append(errs, fmt.Errorf("server.max_body_bytes must be >= 0, got %d", c.Server.MaxBodyBytes))
	}
	if c.Middleware.Timeout < 0 {
		errs = append(errs, fmt.Errorf("middleware.timeout must be >= 0, got %s", c.Middleware.Timeout))
	}
	if c.Middleware.SizeLimit < 0 {
		errs = append(errs, fmt.Errorf("middleware.size_limit must be >= 0, got %d", c.Middleware.SizeLimit))
	}

	if rl := c.Middleware.RateLimit; rl.Enabled {
		if rl.Rate <= 0 {
			errs = append(errs, fmt.Errorf("middleware.rate_limit.rate must be > 0, got %d", rl.Rate))
		}
		if rl.Burst < rl.Rate {
			errs = append(errs, fmt.Errorf("middleware.rate_limit.burst must be >= rate, got %d", rl.Burst))
		}
		switch rl.By {
		case "global", "method", "client":
		default:
			errs = append(errs, fmt.Errorf("middleware.rate_limit.by must be \"global\", \"method\" or \"client\", got %q", rl.By))
		}
	}

	auth := c.Middleware.Auth
	switch auth.Type {
	case "none":
	case "apikey":
		if len(auth.APIKeys) == 0 {
			errs = append(errs, errors.New("middleware.auth.api_keys is required when auth.type is \"apikey\""))
		}
		for i, k := range auth.APIKeys {
			if k.Key == "" && k.KeyFile == "" {
				errs = append(errs, fmt.Errorf("middleware.auth.api_keys[%d].key or key_file is required", i))
			}
			if k.Subject == "" {
				errs = append(errs, fmt.Errorf("middleware.auth.api_keys[%d].subject is required", i))
			}
		}
	case "jwt":
		if auth.JWT.Secret == "" && auth.JWT.SecretFile == "" {
			errs = append(errs, errors.New("middleware.auth.jwt.secret or secret_file is required when auth.type is \"jwt\""))
		}
	default:
		errs = append(errs, fmt.Errorf("middleware.auth.type must be \"none\", \"apikey\" or \"jwt\", got %q", auth.Type))
	}

	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	switch c.Logging.Encoding {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.encoding must be \"json\" or \"console\", got %q", c.Logging.Encoding))
	}

	if m := c.Observability.Metrics; m.Enabled && m.MaxMethods <= 0 {
		errs = append(errs, fmt.Errorf("observability.metrics.max_methods must be positive, got %d", m.MaxMethods))
	}
	if m := c.Observability.Metrics; m.Enabled && c.Server.Transport == TransportHTTP {
		if m.Path == "" || m.Path[0] != '/' {
			errs = append(errs, fmt.Errorf("observability.metrics.path must start with \"/\", got %q", m.Path))
		}
	}

	return errors.Join(errs...)
}
