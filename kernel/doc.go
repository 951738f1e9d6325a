// Package kernel implements sequential middleware dispatch for a single
// request/response exchange.
//
// A Kernel owns one Queue of middleware and one fallback Handler. Each call to
// Kernel.Handle either invokes the next middleware in the Queue or, once the
// Queue is exhausted, the fallback. Middleware decide whether processing
// continues by calling the next Handler they are given, or short-circuit by
// returning a response themselves.
//
// # Basic Usage
//
//	queue := kernel.NewQueue(
//	    authMiddleware,
//	    kernel.NewQueue(logMiddleware, metricsMiddleware),
//	)
//	k := kernel.New(queue, notFoundHandler)
//	resp, err := k.Handle(ctx, req)
//
// # The Next Handler
//
// The next Handler passed to Middleware.Process is a Proxy that only exposes
// Handle. Middleware cannot reach the Queue, the fallback or any other part
// of the Kernel through it.
//
// # Lifetime
//
// A Queue tracks its progress with a cursor that only moves forward, so a
// Kernel and its Queue serve exactly one traversal. Build a new pair for each
// request, or use a Pipeline which does that for you and is safe for
// concurrent use:
//
//	p := kernel.NewPipeline(notFoundHandler, authMiddleware, logMiddleware)
//	resp, err := p.Handle(ctx, req)
//
// # Nesting
//
// A Queue is itself a Middleware. When an outer queue reaches a nested queue,
// the nested queue advances its own cursor by one and hands the request to
// its next entry together with the outer next Handler.
package kernel
