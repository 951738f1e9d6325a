package middleware

import (
	"context"
	"strings"

	"github.com/felixgeelhaar/relay/kernel"
	"github.com/felixgeelhaar/relay/protocol"
)

// Identity represents an authenticated identity.
type Identity struct {
	// ID is a unique identifier for the identity (e.g., user ID, API key ID).
	ID string
	// Name is a human-readable name for the identity.
	Name string
	// Metadata contains additional identity information.
	Metadata map[string]any
}

// identityContextKey is the context key for storing the identity.
type identityContextKey struct{}

// IdentityFromContext returns the authenticated identity from the context.
// Returns nil if no identity is present.
func IdentityFromContext(ctx context.Context) *Identity {
	if id, ok := ctx.Value(identityContextKey{}).(*Identity); ok {
		return id
	}
	return nil
}

// ContextWithIdentity returns a new context with the identity attached.
func ContextWithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// AuthOption configures the authentication middleware.
type AuthOption func(*authConfig)

type authConfig struct {
	logger       Logger
	skipMethods  map[string]bool
	realm        string
	errorMessage string
}

// WithAuthLogger sets the logger for auth events.
func WithAuthLogger(l Logger) AuthOption {
	return func(c *authConfig) {
		c.logger = l
	}
}

// WithAuthSkipMethods specifies methods that don't require authentication.
// By default, "ping" is always skipped.
func WithAuthSkipMethods(methods ...string) AuthOption {
	return func(c *authConfig) {
		for _, m := range methods {
			c.skipMethods[m] = true
		}
	}
}

// WithAuthRealm sets the realm for authentication errors.
func WithAuthRealm(realm string) AuthOption {
	return func(c *authConfig) {
		c.realm = realm
	}
}

// WithAuthErrorMessage sets a custom error message for auth failures.
func WithAuthErrorMessage(msg string) AuthOption {
	return func(c *authConfig) {
		c.errorMessage = msg
	}
}

// Authenticator is a function that validates credentials and returns an identity.
// It receives the request and should return an identity if authentication succeeds,
// or nil with an error if it fails.
type Authenticator func(ctx context.Context, req *protocol.Request) (*Identity, error)

// Auth returns middleware that authenticates requests using the provided authenticator.
// If authentication fails, the request is rejected with an authentication error.
func Auth(authenticator Authenticator, opts ...AuthOption) kernel.Middleware {
	cfg := &authConfig{
		skipMethods: map[string]bool{
			protocol.MethodPing: true,
		},
		realm:        "relay",
		errorMessage: "authentication required",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return kernel.MiddlewareFunc(func(ctx context.Context, req *protocol.Request, next kernel.Handler) (*protocol.Response, error) {
		if cfg.skipMethods[req.Method] {
			return next.Handle(ctx, req)
		}

		identity, err := authenticator(ctx, req)
		if err != nil || identity == nil {
			if cfg.logger != nil {
				fields := []Field{F("method", req.Method), F("realm", cfg.realm)}
				if err != nil {
					fields = append(fields, F("error", err.Error()))
				}
				cfg.logger.Warn("authentication failed", fields...)
			}
			return nil, protocol.NewUnauthorized(cfg.errorMessage)
		}

		if cfg.logger != nil {
			cfg.logger.Debug("authenticated",
				F("method", req.Method),
				F("identity", identity.ID),
			)
		}

		return next.Handle(ContextWithIdentity(ctx, identity), req)
	})
}

// APIKeyAuthenticator creates an authenticator that validates API keys.
// The keyValidator function should return the identity for a valid key, or nil for invalid.
func APIKeyAuthenticator(headerName string, keyValidator func(key string) *Identity) Authenticator {
	return func(ctx context.Context, req *protocol.Request) (*Identity, error) {
		// Transports copy credentials into request metadata.
		key := protocol.GetRequestMeta(ctx, headerName)
		if key == "" {
			key = protocol.GetRequestMeta(ctx, strings.ToLower(headerName))
		}
		if key == "" {
			return nil, nil
		}

		return keyValidator(key), nil
	}
}

// BearerTokenAuthenticator creates an authenticator that validates bearer tokens.
// The tokenValidator function should return the identity for a valid token, or nil for invalid.
func BearerTokenAuthenticator(tokenValidator func(token string) *Identity) Authenticator {
	return func(ctx context.Context, req *protocol.Request) (*Identity, error) {
		token := bearerToken(ctx)
		if token == "" {
			return nil, nil
		}
		return tokenValidator(token), nil
	}
}

// bearerToken extracts the token from "Authorization: Bearer <token>"
// request metadata.
func bearerToken(ctx context.Context) string {
	auth := protocol.GetRequestMeta(ctx, protocol.MetaAuthorization)
	if auth == "" {
		auth = protocol.GetRequestMeta(ctx, strings.ToLower(protocol.MetaAuthorization))
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(auth, prefix))
}

// StaticAPIKeys creates a simple key validator from a map of key -> identity.
func StaticAPIKeys(keys map[string]*Identity) func(string) *Identity {
	return func(key string) *Identity {
		return keys[key]
	}
}

// StaticTokens creates a simple token validator from a map of token -> identity.
func StaticTokens(tokens map[string]*Identity) func(string) *Identity {
	return func(token string) *Identity {
		return tokens[token]
	}
}

// ChainAuthenticators chains multiple authenticators, returning the first successful identity.
func ChainAuthenticators(authenticators ...Authenticator) Authenticator {
	return func(ctx context.Context, req *protocol.Request) (*Identity, error) {
		for _, auth := range authenticators {
			identity, err := auth(ctx, req)
			if err != nil {
				return nil, err
			}
			if identity != nil {
				return identity, nil
			}
		}
		return nil, nil
	}
}
