package kernel

import (
	"context"

	"github.com/felixgeelhaar/relay/protocol"
)

// notStarted is the cursor value of a queue that has not processed anything.
const notStarted = -1

// Queue is an ordered list of middleware plus a cursor recording how far
// processing has advanced. Insertion order is dispatch order.
//
// The cursor only moves forward, one step per Process call, so a Queue
// supports a single traversal. A Queue is not safe for concurrent use.
//
// Queue implements Middleware, so queues can be nested.
type Queue struct {
	middlewares []Middleware
	current     int
}

// NewQueue creates a queue holding the given middleware in order.
func NewQueue(middlewares ...Middleware) *Queue {
	q := &Queue{current: notStarted}
	q.Append(middlewares...)
	return q
}

// Append adds middleware to the end of the queue and returns the queue.
// Middleware appended after processing has started are reached only if the
// cursor has not already passed the end of the queue.
func (q *Queue) Append(middlewares ...Middleware) *Queue {
	for _, m := range middlewares {
		if m == nil {
			panic(ErrNilMiddleware)
		}
		q.middlewares = append(q.middlewares, m)
	}
	return q
}

// Prepend inserts middleware at the start of the queue, keeping their
// relative order, and returns the queue.
//
// The cursor is a raw position, so inserting in front of it would shift the
// entry it points at. Prepend therefore panics with ErrTraversalStarted once
// Process has been called.
func (q *Queue) Prepend(middlewares ...Middleware) *Queue {
	if q.current != notStarted {
		panic(ErrTraversalStarted)
	}
	for _, m := range middlewares {
		if m == nil {
			panic(ErrNilMiddleware)
		}
	}
	q.middlewares = append(append(make([]Middleware, 0, len(middlewares)+len(q.middlewares)), middlewares...), q.middlewares...)
	return q
}

// Processed reports whether every middleware in the queue has been invoked.
func (q *Queue) Processed() bool {
	return q.current+1 >= len(q.middlewares)
}

// Process advances the cursor by one and invokes the middleware at the new
// position with next.
//
// Callers must check Processed first. Calling Process on an exhausted queue
// returns a *PositionError matching ErrOutOfRange.
func (q *Queue) Process(ctx context.Context, req *protocol.Request, next Handler) (*protocol.Response, error) {
	q.current++

	if q.current >= len(q.middlewares) {
		return nil, &PositionError{Position: q.current}
	}

	return q.middlewares[q.current].Process(ctx, req, next)
}

// Len returns the number of middleware in the queue.
func (q *Queue) Len() int {
	return len(q.middlewares)
}

// Position returns the index of the most recently processed middleware,
// or -1 if processing has not started.
func (q *Queue) Position() int {
	return q.current
}

// Clone returns a copy of the queue with a fresh cursor. Nested queues are
// cloned as well, so the copy shares no traversal state with q.
func (q *Queue) Clone() *Queue {
	c := &Queue{
		middlewares: make([]Middleware, len(q.middlewares)),
		current:     notStarted,
	}
	for i, m := range q.middlewares {
		if nested, ok := m.(*Queue); ok {
			m = nested.Clone()
		}
		c.middlewares[i] = m
	}
	return c
}
