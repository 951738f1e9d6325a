package protocol

import "context"

// requestMetaKey is the context key for request metadata.
type requestMetaKey struct{}

// RequestMeta holds transport-level metadata for a request, such as
// selected HTTP headers. Middleware read it from the context; the request
// itself stays untouched.
type RequestMeta map[string]string

// Clone returns a copy of m with room for extra entries.
func (m RequestMeta) Clone(extra int) RequestMeta {
	c := make(RequestMeta, len(m)+extra)
	for k, v := range m {
		c[k] = v
	}
	return c
}

// ContextWithRequestMeta returns a new context with the request metadata attached.
func ContextWithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFromContext returns the request metadata from the context, or nil.
func RequestMetaFromContext(ctx context.Context) RequestMeta {
	if meta, ok := ctx.Value(requestMetaKey{}).(RequestMeta); ok {
		return meta
	}
	return nil
}

// GetRequestMeta returns a metadata value from the context, or "".
func GetRequestMeta(ctx context.Context, key string) string {
	return RequestMetaFromContext(ctx)[key]
}

// SetRequestMeta returns a context whose metadata has key set to value.
// The metadata already on ctx is copied, never mutated.
func SetRequestMeta(ctx context.Context, key, value string) context.Context {
	meta := RequestMetaFromContext(ctx).Clone(1)
	meta[key] = value
	return ContextWithRequestMeta(ctx, meta)
}
