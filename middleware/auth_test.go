package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/felixgeelhaar/relay/protocol"
)

func TestAuth(t *testing.T) {
	validIdentity := &Identity{
		ID:   "user-123",
		Name: "Test User",
	}

	authenticator := func(ctx context.Context, req *protocol.Request) (*Identity, error) {
		switch protocol.GetRequestMeta(ctx, protocol.MetaAPIKey) {
		case "valid-key":
			return validIdentity, nil
		case "error-key":
			return nil, errors.New("auth error")
		}
		return nil, nil
	}

	withKey := func(key string) context.Context {
		return protocol.SetRequestMeta(context.Background(), protocol.MetaAPIKey, key)
	}
	req := func(method string) *protocol.Request {
		return &protocol.Request{JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: method}
	}

	t.Run("allows authenticated requests", func(t *testing.T) {
		h := serve(Auth(authenticator), func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			identity := IdentityFromContext(ctx)
			if identity == nil {
				t.Error("expected identity in context")
			} else if identity.ID != "user-123" {
				t.Errorf("expected ID 'user-123', got %q", identity.ID)
			}
			return protocol.NewResponse(req.ID, "ok"), nil
		})

		resp, err := h.Handle(withKey("valid-key"), req("orders/create"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp == nil {
			t.Fatal("expected response")
		}
	})

	rejections := []struct {
		name string
		ctx  context.Context
	}{
		{"rejects unauthenticated requests", context.Background()},
		{"rejects unknown keys", withKey("wrong-key")},
		{"rejects on auth error", withKey("error-key")},
	}
	for _, tt := range rejections {
		t.Run(tt.name, func(t *testing.T) {
			logger := &recordingLogger{}
			h := serve(Auth(authenticator, WithAuthLogger(logger)), func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
				t.Error("handler should not be called")
				return nil, nil
			})

			_, err := h.Handle(tt.ctx, req("orders/create"))
			var rpcErr *protocol.Error
			if !errors.As(err, &rpcErr) {
				t.Fatalf("expected protocol.Error, got %T", err)
			}
			if rpcErr.Code != protocol.CodeUnauthorized {
				t.Errorf("code = %d, want %d", rpcErr.Code, protocol.CodeUnauthorized)
			}
			if rpcErr.Message != "authentication required" {
				t.Errorf("message = %q", rpcErr.Message)
			}
			if len(logger.entries) != 1 || logger.entries[0].level != "warn" {
				t.Errorf("expected one warn entry, got %+v", logger.entries)
			}
		})
	}

	t.Run("skips ping method", func(t *testing.T) {
		if _, err := serve(Auth(authenticator), okHandler).Handle(context.Background(), req(protocol.MethodPing)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("custom skip methods", func(t *testing.T) {
		m := Auth(authenticator, WithAuthSkipMethods("public/info"))
		if _, err := serve(m, okHandler).Handle(context.Background(), req("public/info")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("custom error message", func(t *testing.T) {
		m := Auth(authenticator, WithAuthErrorMessage("please log in"), WithAuthRealm("billing"))
		_, err := serve(m, okHandler).Handle(context.Background(), req("orders/create"))
		if rpcErr := protocol.AsError(err); rpcErr.Message != "please log in" {
			t.Errorf("message = %q, want %q", rpcErr.Message, "please log in")
		}
	})
}

func TestAPIKeyAuthenticator(t *testing.T) {
	auth := APIKeyAuthenticator(protocol.MetaAPIKey, StaticAPIKeys(map[string]*Identity{
		"key-1": {ID: "svc-1"},
	}))

	tests := []struct {
		name   string
		meta   protocol.RequestMeta
		wantID string
	}{
		{"valid key", protocol.RequestMeta{"X-API-Key": "key-1"}, "svc-1"},
		{"lowercase header", protocol.RequestMeta{"x-api-key": "key-1"}, "svc-1"},
		{"invalid key", protocol.RequestMeta{"X-API-Key": "nope"}, ""},
		{"missing key", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := protocol.ContextWithRequestMeta(context.Background(), tt.meta)
			identity, err := auth(ctx, &protocol.Request{})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			gotID := ""
			if identity != nil {
				gotID = identity.ID
			}
			if gotID != tt.wantID {
				t.Errorf("identity = %q, want %q", gotID, tt.wantID)
			}
		})
	}
}

func TestBearerTokenAuthenticator(t *testing.T) {
	auth := BearerTokenAuthenticator(StaticTokens(map[string]*Identity{
		"tok": {ID: "alice"},
	}))

	tests := []struct {
		name   string
		header string
		wantID string
	}{
		{"valid token", "Bearer tok", "alice"},
		{"unknown token", "Bearer other", ""},
		{"wrong scheme", "Basic tok", ""},
		{"empty token", "Bearer ", ""},
		{"missing header", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.header != "" {
				ctx = protocol.SetRequestMeta(ctx, protocol.MetaAuthorization, tt.header)
			}
			identity, _ := auth(ctx, &protocol.Request{})
			gotID := ""
			if identity != nil {
				gotID = identity.ID
			}
			if gotID != tt.wantID {
				t.Errorf("identity = %q, want %q", gotID, tt.wantID)
			}
		})
	}
}

func TestChainAuthenticators(t *testing.T) {
	fixed := func(id string, err error) Authenticator {
		return func(context.Context, *protocol.Request) (*Identity, error) {
			if err != nil {
				return nil, err
			}
			if id == "" {
				return nil, nil
			}
			return &Identity{ID: id}, nil
		}
	}
	sentinel := errors.New("backend down")

	tests := []struct {
		name    string
		chain   Authenticator
		wantID  string
		wantErr error
	}{
		{"first authenticator succeeds", ChainAuthenticators(fixed("a", nil), fixed("b", nil)), "a", nil},
		{"second authenticator succeeds", ChainAuthenticators(fixed("", nil), fixed("b", nil)), "b", nil},
		{"no authenticator succeeds", ChainAuthenticators(fixed("", nil), fixed("", nil)), "", nil},
		{"error stops the chain", ChainAuthenticators(fixed("", sentinel), fixed("b", nil)), "", sentinel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity, err := tt.chain(context.Background(), &protocol.Request{})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			gotID := ""
			if identity != nil {
				gotID = identity.ID
			}
			if gotID != tt.wantID {
				t.Errorf("identity = %q, want %q", gotID, tt.wantID)
			}
		})
	}
}

func TestIdentityFromContext(t *testing.T) {
	t.Run("get identity from context", func(t *testing.T) {
		id := &Identity{ID: "x", Metadata: map[string]any{"role": "admin"}}
		if got := IdentityFromContext(ContextWithIdentity(context.Background(), id)); got != id {
			t.Errorf("got %v, want %v", got, id)
		}
	})

	t.Run("no identity in context", func(t *testing.T) {
		if got := IdentityFromContext(context.Background()); got != nil {
			t.Errorf("got %v, want nil", got)
		}
	})
}
