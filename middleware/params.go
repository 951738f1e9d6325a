package middleware

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/felixgeelhaar/relay/kernel"
	"github.com/felixgeelhaar/relay/protocol"
)

// SchemaFor infers a JSON Schema for the params type T from its json tags.
// Fields without omitempty are required.
func SchemaFor[T any]() (*jsonschema.Schema, error) {
	return jsonschema.For[T](nil)
}

// ValidateParams returns middleware that checks the params of each listed
// method against its schema and rejects mismatches with an invalid params
// error. Methods without a schema pass through. Omitted params are
// validated as null.
//
// Schemas are resolved once, here; an unresolvable schema is an error.
func ValidateParams(schemas map[string]*jsonschema.Schema) (kernel.Middleware, error) {
	resolved := make(map[string]*jsonschema.Resolved, len(schemas))
	for method, s := range schemas {
		r, err := s.Resolve(nil)
		if err != nil {
			return nil, fmt.Errorf("schema for %q: %w", method, err)
		}
		resolved[method] = r
	}

	return kernel.MiddlewareFunc(func(ctx context.Context, req *protocol.Request, next kernel.Handler) (*protocol.Response, error) {
		r, ok := resolved[req.Method]
		if !ok {
			return next.Handle(ctx, req)
		}

		var params any
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &params); err != nil {
				return nil, protocol.NewInvalidParams("params are not valid JSON")
			}
		}
		if err := r.Validate(params); err != nil {
			return nil, protocol.NewInvalidParams(err.Error())
		}
		return next.Handle(ctx, req)
	}), nil
}
