package middleware

import (
	"context"
	"encoding/json"

	"github.com/felixgeelhaar/relay/kernel"
	"github.com/felixgeelhaar/relay/protocol"
)

// Ping answers "ping" requests with an empty result. Other methods pass
// through.
func Ping() kernel.Middleware {
	return kernel.MiddlewareFunc(func(ctx context.Context, req *protocol.Request, next kernel.Handler) (*protocol.Response, error) {
		if req.Method != protocol.MethodPing {
			return next.Handle(ctx, req)
		}
		return protocol.NewResponse(req.ID, struct{}{}), nil
	})
}

// Echo answers "echo" requests with their params. Other methods pass through.
func Echo() kernel.Middleware {
	return kernel.MiddlewareFunc(func(ctx context.Context, req *protocol.Request, next kernel.Handler) (*protocol.Response, error) {
		if req.Method != protocol.MethodEcho {
			return next.Handle(ctx, req)
		}
		params := req.Params
		if len(params) == 0 {
			params = json.RawMessage("null")
		}
		return protocol.NewResponse(req.ID, params), nil
	})
}
