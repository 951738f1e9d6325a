package kernel

import (
	"context"

	"github.com/felixgeelhaar/relay/protocol"
)

// Kernel drives a Queue to completion and falls back to a terminal handler
// once the queue is exhausted.
//
// Handle is called once by the outside caller and again every time a
// middleware delegates to its next Handler. Errors from middleware or the
// fallback are returned unchanged.
type Kernel struct {
	queue    *Queue
	fallback Handler
	proxy    *Proxy
}

// New creates a kernel for queue. The fallback handles requests that no
// middleware answered. A nil queue is treated as empty; a nil fallback panics.
func New(queue *Queue, fallback Handler) *Kernel {
	if fallback == nil {
		panic(ErrNilFallback)
	}
	if queue == nil {
		queue = NewQueue()
	}
	k := &Kernel{
		queue:    queue,
		fallback: fallback,
	}
	k.proxy = NewProxy(k)
	return k
}

// Handle invokes the next middleware in the queue, or the fallback handler
// if every middleware has already been invoked.
func (k *Kernel) Handle(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	if k.queue.Processed() {
		return k.fallback.Handle(ctx, req)
	}

	return k.queue.Process(ctx, req, k.proxy)
}
