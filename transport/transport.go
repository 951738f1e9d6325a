package transport

import (
	"context"
	"encoding/json"

	"github.com/felixgeelhaar/relay/protocol"
)

// Handler processes decoded JSON-RPC requests. *kernel.Pipeline satisfies it.
type Handler interface {
	Handle(ctx context.Context, req *protocol.Request) (*protocol.Response, error)
}

// HandlerFunc is an adapter to allow ordinary functions as handlers.
type HandlerFunc func(ctx context.Context, req *protocol.Request) (*protocol.Response, error)

// Handle calls f(ctx, req).
func (f HandlerFunc) Handle(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	return f(ctx, req)
}

// Transport defines the communication layer interface.
type Transport interface {
	// Serve starts the transport, blocking until ctx is canceled or an error occurs.
	Serve(ctx context.Context, handler Handler) error

	// Addr returns the transport's address description.
	Addr() string
}

// Dispatch decodes one JSON-RPC message, runs it through handler and
// returns the response to send. It returns nil when nothing must be sent,
// which is the case for notifications.
//
// Handler errors become error responses here; handlers and middleware
// never need to build error responses themselves.
func Dispatch(ctx context.Context, handler Handler, data []byte) *protocol.Response {
	var req protocol.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return protocol.NewErrorResponse(nil, protocol.NewParseError(err.Error()))
	}
	return DispatchRequest(ctx, handler, &req)
}

// DispatchRequest is Dispatch for an already decoded request.
func DispatchRequest(ctx context.Context, handler Handler, req *protocol.Request) *protocol.Response {
	if err := req.Validate(); err != nil {
		if req.IsNotification() {
			return nil
		}
		return protocol.NewErrorResponse(req.ID, protocol.AsError(err))
	}

	resp, err := handler.Handle(ctx, req)

	if req.IsNotification() {
		return nil
	}
	if err != nil {
		return protocol.NewErrorResponse(req.ID, protocol.AsError(err))
	}
	if resp == nil {
		return protocol.NewResponse(req.ID, nil)
	}
	if len(resp.ID) == 0 {
		resp.ID = req.ID
	}
	return resp
}
