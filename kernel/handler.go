package kernel

import (
	"context"

	"github.com/felixgeelhaar/relay/protocol"
)

// Handler produces a response for a request.
type Handler interface {
	Handle(ctx context.Context, req *protocol.Request) (*protocol.Response, error)
}

// HandlerFunc is an adapter to allow ordinary functions as handlers.
type HandlerFunc func(ctx context.Context, req *protocol.Request) (*protocol.Response, error)

// Handle calls f(ctx, req).
func (f HandlerFunc) Handle(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	return f(ctx, req)
}

// Middleware processes a request and either returns a response directly or
// delegates to next.
type Middleware interface {
	Process(ctx context.Context, req *protocol.Request, next Handler) (*protocol.Response, error)
}

// MiddlewareFunc is an adapter to allow ordinary functions as middleware.
type MiddlewareFunc func(ctx context.Context, req *protocol.Request, next Handler) (*protocol.Response, error)

// Process calls f(ctx, req, next).
func (f MiddlewareFunc) Process(ctx context.Context, req *protocol.Request, next Handler) (*protocol.Response, error) {
	return f(ctx, req, next)
}
