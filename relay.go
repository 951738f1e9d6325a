// Package relay provides a sequential middleware dispatch kernel for
// JSON-RPC 2.0 services.
//
// A request travels through an ordered queue of middleware. Each entry either
// answers the request itself or delegates to the next entry through a proxy
// handed to it by the kernel. When the queue is exhausted the kernel calls a
// fallback handler.
//
// Basic usage:
//
//	p := relay.NewPipeline(relay.MethodNotFound(),
//	    relay.Recover(),
//	    relay.RequestID(),
//	    relay.Ping(),
//	)
//
//	relay.ServeStdio(ctx, p)
//
// The kernel, queue and proxy live in package kernel; ready-made entries in
// package middleware; stdio, HTTP and WebSocket servers in package transport.
package relay

import (
	"context"
	"time"

	"github.com/felixgeelhaar/relay/kernel"
	"github.com/felixgeelhaar/relay/middleware"
	"github.com/felixgeelhaar/relay/protocol"
	"github.com/felixgeelhaar/relay/transport"
)

// Core types
type (
	Handler        = kernel.Handler
	HandlerFunc    = kernel.HandlerFunc
	Middleware     = kernel.Middleware
	MiddlewareFunc = kernel.MiddlewareFunc
	Queue          = kernel.Queue
	Kernel         = kernel.Kernel
	Proxy          = kernel.Proxy
	Pipeline       = kernel.Pipeline
)

// Protocol types
type (
	Request  = protocol.Request
	Response = protocol.Response
	Error    = protocol.Error
)

// Middleware types
type (
	Logger   = middleware.Logger
	LogField = middleware.Field
)

// Transport options
type (
	StdioOption     = transport.StdioOption
	HTTPOption      = transport.HTTPOption
	WebSocketOption = transport.WebSocketOption
)

// NewQueue creates a queue holding entries in order.
func NewQueue(entries ...Middleware) *Queue {
	return kernel.NewQueue(entries...)
}

// NewKernel creates a kernel that runs queue and ends in fallback. A kernel
// serves a single traversal; use NewPipeline to serve many requests.
func NewKernel(queue *Queue, fallback Handler) *Kernel {
	return kernel.New(queue, fallback)
}

// NewPipeline creates a reusable, concurrency-safe handler that runs entries
// in order for every request and ends in fallback.
func NewPipeline(fallback Handler, entries ...Middleware) *Pipeline {
	return kernel.NewPipeline(fallback, entries...)
}

// MethodNotFound returns a fallback that rejects every request with a
// method-not-found error.
func MethodNotFound() Handler {
	return HandlerFunc(func(_ context.Context, req *Request) (*Response, error) {
		return nil, protocol.NewMethodNotFound("method not found: " + req.Method)
	})
}

// Methods returns a fallback that dispatches on the request method. Unknown
// methods get a method-not-found error.
func Methods(handlers map[string]Handler) Handler {
	routes := make(map[string]Handler, len(handlers))
	for method, h := range handlers {
		routes[method] = h
	}
	notFound := MethodNotFound()
	return HandlerFunc(func(ctx context.Context, req *Request) (*Response, error) {
		if h, ok := routes[req.Method]; ok {
			return h.Handle(ctx, req)
		}
		return notFound.Handle(ctx, req)
	})
}

// ServeStdio serves handler over newline-delimited JSON on stdin/stdout.
// It blocks until EOF or ctx is canceled.
func ServeStdio(ctx context.Context, handler Handler, opts ...StdioOption) error {
	return transport.NewStdio(opts...).Serve(ctx, handler)
}

// ServeHTTP serves handler over HTTP POST at addr. It blocks until ctx is
// canceled or the server fails.
func ServeHTTP(ctx context.Context, handler Handler, addr string, opts ...HTTPOption) error {
	return transport.NewHTTP(addr, opts...).Serve(ctx, handler)
}

// ServeWebSocket serves handler over WebSocket at addr. It blocks until ctx
// is canceled or the server fails.
func ServeWebSocket(ctx context.Context, handler Handler, addr string, opts ...WebSocketOption) error {
	return transport.NewWebSocket(addr, opts...).Serve(ctx, handler)
}

// Middleware re-exports

// Recover returns middleware that converts panics into internal errors.
func Recover() Middleware {
	return middleware.Recover()
}

// RequestID returns middleware that attaches a unique request ID to the context.
func RequestID() Middleware {
	return middleware.RequestID()
}

// RequestIDFromContext returns the request ID from ctx, or "".
func RequestIDFromContext(ctx context.Context) string {
	return middleware.RequestIDFromContext(ctx)
}

// Timeout returns middleware that bounds everything after it by d.
func Timeout(d time.Duration) Middleware {
	return middleware.Timeout(d)
}

// Logging returns middleware that logs each request.
func Logging(logger Logger) Middleware {
	return middleware.Logging(logger)
}

// Ping returns middleware that answers ping requests.
func Ping() Middleware {
	return middleware.Ping()
}

// DefaultMiddleware returns the recommended production stack.
func DefaultMiddleware(logger Logger) []Middleware {
	return middleware.DefaultStack(logger)
}

// DefaultMiddlewareWithTimeout returns the default stack with a timeout entry.
func DefaultMiddlewareWithTimeout(logger Logger, timeout time.Duration) []Middleware {
	return middleware.DefaultStackWithTimeout(logger, timeout)
}

// LogF creates a log field.
func LogF(key string, value any) LogField {
	return middleware.F(key, value)
}
