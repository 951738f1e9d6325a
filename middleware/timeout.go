package middleware

import (
	"context"
	"time"

	"github.com/felixgeelhaar/relay/kernel"
	"github.com/felixgeelhaar/relay/protocol"
)

// Timeout returns middleware that enforces a request deadline on every
// entry after it and on the fallback handler. Handlers observe the deadline
// through ctx; Timeout does not abandon a handler that ignores it.
func Timeout(d time.Duration) kernel.Middleware {
	return kernel.MiddlewareFunc(func(ctx context.Context, req *protocol.Request, next kernel.Handler) (*protocol.Response, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return next.Handle(ctx, req)
	})
}
