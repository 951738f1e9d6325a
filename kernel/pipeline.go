package kernel

import (
	"context"
	"sync"

	"github.com/felixgeelhaar/relay/protocol"
)

// Pipeline is a reusable middleware template. Each call to Handle runs the
// request through a fresh Queue and Kernel built from the template, so a
// Pipeline can serve many requests concurrently.
type Pipeline struct {
	mu          sync.RWMutex
	fallback    Handler
	middlewares []Middleware
}

// NewPipeline creates a pipeline that runs middlewares in order and ends in
// fallback. A nil fallback panics.
func NewPipeline(fallback Handler, middlewares ...Middleware) *Pipeline {
	if fallback == nil {
		panic(ErrNilFallback)
	}
	p := &Pipeline{fallback: fallback}
	p.Use(middlewares...)
	return p
}

// Use appends middleware to the template. Requests already in flight are
// not affected.
func (p *Pipeline) Use(middlewares ...Middleware) {
	for _, m := range middlewares {
		if m == nil {
			panic(ErrNilMiddleware)
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.middlewares = append(p.middlewares, middlewares...)
}

// Len returns the number of middleware in the template.
func (p *Pipeline) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.middlewares)
}

// Handle runs req through a new traversal of the pipeline.
func (p *Pipeline) Handle(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	return New(p.queue(), p.fallback).Handle(ctx, req)
}

// queue builds a traversal queue from the template. Nested queues are
// stateful, so they are cloned rather than shared between requests.
func (p *Pipeline) queue() *Queue {
	p.mu.RLock()
	defer p.mu.RUnlock()

	template := &Queue{middlewares: p.middlewares, current: notStarted}
	return template.Clone()
}
