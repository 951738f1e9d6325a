package kernel

import (
	"context"

	"github.com/felixgeelhaar/relay/protocol"
)

// Proxy limits what a middleware can reach to a single Handle method.
//
// The Kernel passes its Proxy as the next Handler instead of itself, so
// middleware cannot touch the queue or the fallback handler.
type Proxy struct {
	target Handler
}

// NewProxy creates a proxy forwarding to target.
func NewProxy(target Handler) *Proxy {
	return &Proxy{target: target}
}

// Handle forwards the request to the proxied handler.
func (p *Proxy) Handle(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	return p.target.Handle(ctx, req)
}
