package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/relay/client"
	"github.com/felixgeelhaar/relay/protocol"
	"github.com/felixgeelhaar/relay/transport"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func TestWebSocketTransport(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := httptest.NewServer(transport.NewWebSocket("").Router(ctx, newServerPipeline()))
	defer srv.Close()

	tr, err := client.DialWebSocket(ctx, wsURL(srv), http.Header{})
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	c := client.New(tr, client.WithTimeout(5*time.Second))
	defer c.Close()

	t.Run("ping", func(t *testing.T) {
		if err := c.Ping(ctx); err != nil {
			t.Fatalf("ping failed: %v", err)
		}
	})

	t.Run("call decodes result", func(t *testing.T) {
		var sum int
		if err := c.Call(ctx, "add", []int{10, 20}, &sum); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if sum != 30 {
			t.Errorf("sum = %d, want 30", sum)
		}
	})

	t.Run("notification then call", func(t *testing.T) {
		if err := c.Notify(ctx, "add", []int{1}); err != nil {
			t.Fatalf("notify failed: %v", err)
		}
		err := c.Call(ctx, "missing", nil, nil)
		if !errors.Is(err, protocol.NewMethodNotFound("")) {
			t.Errorf("error = %v, want method not found", err)
		}
	})
}

func TestWebSocketTransport_Close(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv := httptest.NewServer(transport.NewWebSocket("").Router(ctx, newServerPipeline()))
	defer srv.Close()

	tr, err := client.DialWebSocket(ctx, wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Errorf("second close failed: %v", err)
	}

	err = client.New(tr).Call(context.Background(), "add", []int{1}, nil)
	if !errors.Is(err, client.ErrClosed) {
		t.Errorf("error = %v, want ErrClosed", err)
	}
}

func TestDialWebSocket_Error(t *testing.T) {
	_, err := client.DialWebSocket(context.Background(), "ws://127.0.0.1:1/ws", nil)
	if err == nil {
		t.Fatal("expected dial error")
	}
}
