package transport

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSConfig configures browser access to the HTTP transport. Content-Type
// and the forwarded metadata headers are always allowed.
type CORSConfig struct {
	// AllowOrigins lists permitted origins. "*" permits any origin.
	AllowOrigins []string

	// AllowHeaders lists request headers allowed in addition to the
	// forwarded ones.
	AllowHeaders []string

	// AllowCredentials lets browsers send cookies and Authorization. The
	// request origin is echoed back instead of "*" when set.
	AllowCredentials bool

	// MaxAge is how long browsers may cache a preflight result.
	MaxAge time.Duration
}

// DefaultCORSConfig allows any origin without credentials.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{"*"},
		MaxAge:       24 * time.Hour,
	}
}

// WithCORS enables CORS on the HTTP transport.
func WithCORS(config CORSConfig) HTTPOption {
	return func(h *HTTP) {
		h.corsConfig = &config
	}
}

// WithDefaultCORS enables CORS with DefaultCORSConfig.
func WithDefaultCORS() HTTPOption {
	return WithCORS(DefaultCORSConfig())
}

type corsPolicy struct {
	anyOrigin   bool
	origins     map[string]bool
	headers     string
	credentials bool
	maxAge      string
}

func newCORSPolicy(config CORSConfig) *corsPolicy {
	p := &corsPolicy{
		origins:     make(map[string]bool, len(config.AllowOrigins)),
		credentials: config.AllowCredentials,
	}
	for _, origin := range config.AllowOrigins {
		if origin == "*" {
			p.anyOrigin = true
		}
		p.origins[origin] = true
	}

	seen := make(map[string]bool)
	var headers []string
	for _, name := range append(append([]string{"Content-Type"}, forwardedHeaders...), config.AllowHeaders...) {
		name = strings.TrimSpace(name)
		key := strings.ToLower(name)
		if name == "" || seen[key] {
			continue
		}
		seen[key] = true
		headers = append(headers, name)
	}
	p.headers = strings.Join(headers, ", ")

	if config.MaxAge > 0 {
		p.maxAge = strconv.Itoa(int(config.MaxAge / time.Second))
	}
	return p
}

// wrap answers preflights for allowed origins and decorates other responses.
// Preflights from unknown origins get 403.
func (p *corsPolicy) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}

		header := w.Header()
		header.Add("Vary", "Origin")
		preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""

		if !p.anyOrigin && !p.origins[origin] {
			if preflight {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		if p.anyOrigin && !p.credentials {
			header.Set("Access-Control-Allow-Origin", "*")
		} else {
			header.Set("Access-Control-Allow-Origin", origin)
		}
		if p.credentials {
			header.Set("Access-Control-Allow-Credentials", "true")
		}

		if !preflight {
			next.ServeHTTP(w, r)
			return
		}
		header.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		header.Set("Access-Control-Allow-Headers", p.headers)
		if p.maxAge != "" {
			header.Set("Access-Control-Max-Age", p.maxAge)
		}
		w.WriteHeader(http.StatusNoContent)
	})
}
