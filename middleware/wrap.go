package middleware

import (
	"context"

	"github.com/felixgeelhaar/relay/kernel"
	"github.com/felixgeelhaar/relay/protocol"
)

// Decorator wraps a handler with additional behavior.
type Decorator func(next kernel.Handler) kernel.Handler

// Wrap adapts a decorator to a queue entry. The decorator receives the
// kernel's next handler on every request.
func Wrap(d Decorator) kernel.Middleware {
	return kernel.MiddlewareFunc(func(ctx context.Context, req *protocol.Request, next kernel.Handler) (*protocol.Response, error) {
		return d(next).Handle(ctx, req)
	})
}
