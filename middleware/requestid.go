package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/relay/kernel"
	"github.com/felixgeelhaar/relay/protocol"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

const requestIDKey contextKey = "requestID"

// RequestID returns middleware that injects a unique request ID into the context.
// An ID already in the context, or sent by the client as X-Request-ID
// metadata, is preserved.
func RequestID() kernel.Middleware {
	return RequestIDWithGenerator(uuid.NewString)
}

// RequestIDWithGenerator returns middleware that uses a custom ID generator.
func RequestIDWithGenerator(generator func() string) kernel.Middleware {
	return kernel.MiddlewareFunc(func(ctx context.Context, req *protocol.Request, next kernel.Handler) (*protocol.Response, error) {
		if existing := RequestIDFromContext(ctx); existing != "" {
			return next.Handle(ctx, req)
		}

		id := protocol.GetRequestMeta(ctx, protocol.MetaRequestID)
		if id == "" {
			id = generator()
		}
		return next.Handle(ContextWithRequestID(ctx, id), req)
	})
}

// RequestIDFromContext returns the request ID from the context, or empty string if not set.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// ContextWithRequestID returns a new context with the request ID set.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}
