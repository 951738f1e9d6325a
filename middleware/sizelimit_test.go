package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/felixgeelhaar/relay/protocol"
)

func TestSizeLimit(t *testing.T) {
	tests := []struct {
		name    string
		limit   int64
		params  json.RawMessage
		wantErr bool
	}{
		{"allows requests within limit", KB, json.RawMessage(`{"small": "data"}`), false},
		{"rejects requests exceeding limit", 50, json.RawMessage(`{"data": "` + strings.Repeat("x", 100) + `"}`), true},
		{"allows requests without params", 1, nil, false},
		{"limit is inclusive", 4, json.RawMessage(`"ab"`), false},
		{"allows large payloads under MB", MB, json.RawMessage(`"` + strings.Repeat("y", 10*KB) + `"`), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := &recordingLogger{}
			called := false
			h := serve(SizeLimit(tt.limit, WithSizeLimitLogger(logger)), func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
				called = true
				return protocol.NewResponse(req.ID, "ok"), nil
			})

			resp, err := h.Handle(context.Background(), &protocol.Request{
				JSONRPC: "2.0",
				ID:      json.RawMessage(`1`),
				Method:  "test",
				Params:  tt.params,
			})

			if !tt.wantErr {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if resp == nil || !called {
					t.Fatal("expected handler response")
				}
				return
			}

			var rpcErr *protocol.Error
			if !errors.As(err, &rpcErr) {
				t.Fatalf("expected protocol.Error, got %T", err)
			}
			if rpcErr.Code != protocol.CodeInvalidRequest {
				t.Errorf("code = %d, want %d", rpcErr.Code, protocol.CodeInvalidRequest)
			}
			if !strings.Contains(rpcErr.Message, "exceeds limit") {
				t.Errorf("message = %q", rpcErr.Message)
			}
			if called {
				t.Error("oversized request reached the handler")
			}
			if len(logger.entries) != 1 {
				t.Errorf("log entries = %d, want 1", len(logger.entries))
			}
		})
	}
}
