package transport_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/relay/protocol"
	"github.com/felixgeelhaar/relay/transport"
)

func preflight(srv http.Handler, origin, headers string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodOptions, "/rpc", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	if headers != "" {
		req.Header.Set("Access-Control-Request-Headers", headers)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestHTTP_CORS(t *testing.T) {
	handler := transport.HandlerFunc(func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
		return protocol.NewResponse(req.ID, protocol.RequestMetaFromContext(ctx)), nil
	})

	t.Run("preflight allows forwarded meta headers", func(t *testing.T) {
		srv := transport.NewHTTP(":0", transport.WithDefaultCORS()).Router(handler)

		rec := preflight(srv, "http://app.example", "authorization, x-api-key, x-request-id")
		if rec.Code != http.StatusNoContent {
			t.Fatalf("status = %d, want 204", rec.Code)
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("allow origin = %q, want *", got)
		}
		allowed := rec.Header().Get("Access-Control-Allow-Headers")
		for _, name := range []string{"Content-Type", protocol.MetaAuthorization, protocol.MetaAPIKey, protocol.MetaRequestID} {
			if !strings.Contains(allowed, name) {
				t.Errorf("allow headers %q missing %s", allowed, name)
			}
		}
		if got := rec.Header().Get("Access-Control-Max-Age"); got != "86400" {
			t.Errorf("max age = %q, want 86400", got)
		}
	})

	t.Run("extra headers are appended once", func(t *testing.T) {
		cors := transport.CORSConfig{
			AllowOrigins: []string{"*"},
			AllowHeaders: []string{"x-trace", "authorization"},
		}
		srv := transport.NewHTTP(":0", transport.WithCORS(cors)).Router(handler)

		rec := preflight(srv, "http://app.example", "x-trace")
		want := "Content-Type, Authorization, X-API-Key, X-Request-ID, x-trace"
		if got := rec.Header().Get("Access-Control-Allow-Headers"); got != want {
			t.Errorf("allow headers = %q, want %q", got, want)
		}
		if got := rec.Header().Get("Access-Control-Max-Age"); got != "" {
			t.Errorf("max age = %q, want unset", got)
		}
	})

	t.Run("credentials reflect the origin", func(t *testing.T) {
		cors := transport.DefaultCORSConfig()
		cors.AllowCredentials = true
		srv := transport.NewHTTP(":0", transport.WithCORS(cors)).Router(handler)

		rec := preflight(srv, "http://app.example", protocol.MetaAuthorization)
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://app.example" {
			t.Errorf("allow origin = %q, want reflected origin", got)
		}
		if rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
			t.Error("missing Access-Control-Allow-Credentials")
		}
		if rec.Header().Get("Vary") != "Origin" {
			t.Errorf("vary = %q, want Origin", rec.Header().Get("Vary"))
		}
	})

	t.Run("allowed origin reaches the pipeline with meta", func(t *testing.T) {
		cors := transport.CORSConfig{AllowOrigins: []string{"http://app.example"}}
		srv := transport.NewHTTP(":0", transport.WithCORS(cors)).Router(handler)

		req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"m"}`))
		req.Header.Set("Origin", "http://app.example")
		req.Header.Set(protocol.MetaRequestID, "req-9")
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://app.example" {
			t.Errorf("allow origin = %q", got)
		}
		if !strings.Contains(rec.Body.String(), `"X-Request-ID":"req-9"`) {
			t.Errorf("body = %q, want forwarded request id", rec.Body.String())
		}
	})

	t.Run("disallowed origins", func(t *testing.T) {
		cors := transport.CORSConfig{AllowOrigins: []string{"http://app.example"}, MaxAge: time.Hour}
		srv := transport.NewHTTP(":0", transport.WithCORS(cors)).Router(handler)

		rec := preflight(srv, "http://evil.example", protocol.MetaAPIKey)
		if rec.Code != http.StatusForbidden {
			t.Errorf("preflight status = %d, want 403", rec.Code)
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("allow origin = %q, want none", got)
		}

		req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"m"}`))
		req.Header.Set("Origin", "http://evil.example")
		post := httptest.NewRecorder()
		srv.ServeHTTP(post, req)
		if got := post.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("allow origin on POST = %q, want none", got)
		}
	})

	t.Run("requests without origin are untouched", func(t *testing.T) {
		srv := transport.NewHTTP(":0", transport.WithDefaultCORS()).Router(handler)

		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("health status = %d, want 200", rec.Code)
		}
		if rec.Header().Get("Vary") != "" || rec.Header().Get("Access-Control-Allow-Origin") != "" {
			t.Errorf("unexpected CORS headers: %v", rec.Header())
		}
	})
}
