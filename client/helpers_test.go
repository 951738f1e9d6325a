package client_test

import (
	"context"
	"encoding/json"

	"github.com/felixgeelhaar/relay/kernel"
	"github.com/felixgeelhaar/relay/middleware"
	"github.com/felixgeelhaar/relay/protocol"
)

// newServerPipeline answers ping, echo and "add"; other methods are not found.
func newServerPipeline() *kernel.Pipeline {
	add := kernel.MiddlewareFunc(func(ctx context.Context, req *protocol.Request, next kernel.Handler) (*protocol.Response, error) {
		if req.Method != "add" {
			return next.Handle(ctx, req)
		}
		var args []int
		if err := json.Unmarshal(req.Params, &args); err != nil {
			return nil, protocol.NewInvalidParams("expected an array of integers")
		}
		sum := 0
		for _, n := range args {
			sum += n
		}
		return protocol.NewResponse(req.ID, sum), nil
	})

	notFound := kernel.HandlerFunc(func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
		return nil, protocol.NewMethodNotFound("method not found: " + req.Method)
	})

	return kernel.NewPipeline(notFound, middleware.Ping(), middleware.Echo(), add)
}
