// Package client provides a JSON-RPC 2.0 client for relay servers.
//
// A Client is transport agnostic: it builds requests, assigns IDs and
// decodes results, while a Transport moves messages over stdio, HTTP or a
// WebSocket connection.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/felixgeelhaar/relay/protocol"
)

// Transport delivers requests to a server.
type Transport interface {
	// Send writes req and waits for the matching response. For
	// notifications it returns a nil response once the message is written.
	Send(ctx context.Context, req *protocol.Request) (*protocol.Response, error)

	// Close releases the underlying connection.
	Close() error
}

// Client issues JSON-RPC calls over a Transport.
type Client struct {
	transport Transport
	opts      clientOptions
	requestID atomic.Int64
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	timeout time.Duration
}

// WithTimeout bounds every call made by the client. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		o.timeout = d
	}
}

// New creates a client using transport.
func New(transport Transport, opts ...Option) *Client {
	o := clientOptions{
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Client{
		transport: transport,
		opts:      o,
	}
}

// Call invokes method with params and decodes the result into result.
// A nil result discards the payload. Error responses are returned as
// *protocol.Error.
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	req, err := protocol.NewRequest(c.requestID.Add(1), method, params)
	if err != nil {
		return err
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.transport.Send(ctx, req)
	if err != nil {
		return err
	}
	if resp == nil {
		return fmt.Errorf("no response for %q", method)
	}
	if resp.Error != nil {
		return resp.Error
	}
	if result == nil || resp.Result == nil {
		return nil
	}
	return decodeResult(resp.Result, result)
}

// Notify sends method as a notification. No response is expected.
func (c *Client) Notify(ctx context.Context, method string, params any) error {
	req, err := protocol.NewRequest(nil, method, params)
	if err != nil {
		return err
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	_, err = c.transport.Send(ctx, req)
	return err
}

// Ping checks that the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.Call(ctx, protocol.MethodPing, nil, nil)
}

// Close closes the transport.
func (c *Client) Close() error {
	return c.transport.Close()
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opts.timeout > 0 {
		return context.WithTimeout(ctx, c.opts.timeout)
	}
	return context.WithCancel(ctx)
}

// decodeResult converts a decoded result into the caller's type.
func decodeResult(raw, result any) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

// idKey normalises a raw JSON id for use as a map key.
func idKey(id json.RawMessage) string {
	var v any
	if err := json.Unmarshal(id, &v); err != nil {
		return string(id)
	}
	return fmt.Sprint(v)
}
