// Package middleware provides ready-made queue entries for relay kernels.
//
// Every constructor returns a kernel.Middleware. An entry either answers the
// request itself or calls next.Handle, which re-enters the kernel and runs
// the remaining entries. Anything an entry does after next.Handle returns
// therefore sees the final response of the whole chain.
//
// # Basic Usage
//
//	p := kernel.NewPipeline(fallback,
//	    middleware.Recover(),
//	    middleware.RequestID(),
//	    middleware.Logging(logger),
//	)
//	resp, err := p.Handle(ctx, req)
//
// # Available Middleware
//
//   - Recover: Catches panics and converts them to internal errors
//   - RequestID: Injects unique request IDs into the context
//   - Timeout: Enforces request deadlines
//   - Logging: Logs request details and timing
//   - RateLimit: Token bucket rate limiting
//   - SizeLimit: Rejects oversized params
//   - Auth: Authenticates requests (API keys, bearer tokens, JWT)
//   - OTel: OpenTelemetry spans and metrics
//   - Metrics: Prometheus counters and latency histogram
//   - Ping, Echo: Answer built-in methods without reaching the fallback
//   - ValidateParams: Checks params against JSON Schemas per method
//   - Cancellation: Cancels in-flight requests on "$/cancelRequest"
//
// # Default Stacks
//
//	// Recover + RequestID + Logging
//	stack := middleware.DefaultStack(logger)
//
//	// Recover + RequestID + Timeout + Logging
//	stack := middleware.DefaultStackWithTimeout(logger, 30*time.Second)
//
// # Custom Middleware
//
//	func Deny(method string) kernel.Middleware {
//	    return kernel.MiddlewareFunc(func(ctx context.Context, req *protocol.Request, next kernel.Handler) (*protocol.Response, error) {
//	        if req.Method == method {
//	            return nil, protocol.NewUnauthorized("denied")
//	        }
//	        return next.Handle(ctx, req)
//	    })
//	}
//
// Decorator-style middleware written as func(kernel.Handler) kernel.Handler
// can be used as an entry through Wrap.
package middleware
