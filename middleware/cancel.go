package middleware

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/felixgeelhaar/relay/kernel"
	"github.com/felixgeelhaar/relay/protocol"
)

// CancelParams are the params of a "$/cancelRequest" notification.
type CancelParams struct {
	// ID is the id of the request to cancel.
	ID json.RawMessage `json:"id"`
	// Reason is an optional human-readable reason.
	Reason string `json:"reason,omitempty"`
}

// Cancellations tracks in-flight requests so they can be canceled by id.
// Requests sharing an id are tracked together and canceled together.
type Cancellations struct {
	mu       sync.Mutex
	requests map[string]map[*tracked]struct{}
}

type tracked struct {
	cancel context.CancelFunc
}

// NewCancellations creates an empty tracker.
func NewCancellations() *Cancellations {
	return &Cancellations{
		requests: make(map[string]map[*tracked]struct{}),
	}
}

// Track derives a cancelable context for id. The returned func releases it
// and only ever removes this request's own entry.
func (c *Cancellations) Track(ctx context.Context, id string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	entry := &tracked{cancel: cancel}

	c.mu.Lock()
	set, ok := c.requests[id]
	if !ok {
		set = make(map[*tracked]struct{})
		c.requests[id] = set
	}
	set[entry] = struct{}{}
	c.mu.Unlock()

	return ctx, func() {
		cancel()
		c.mu.Lock()
		defer c.mu.Unlock()
		if set, ok := c.requests[id]; ok {
			delete(set, entry)
			if len(set) == 0 {
				delete(c.requests, id)
			}
		}
	}
}

// Cancel cancels every request tracked under id and reports whether any
// was in flight.
func (c *Cancellations) Cancel(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	set, ok := c.requests[id]
	if !ok {
		return false
	}
	for entry := range set {
		entry.cancel()
	}
	delete(c.requests, id)
	return true
}

// Active returns the number of tracked requests.
func (c *Cancellations) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, set := range c.requests {
		n += len(set)
	}
	return n
}

// Cancellation returns middleware that makes requests cancelable through
// "$/cancelRequest" notifications. It only helps on transports that handle
// requests concurrently, such as HTTP.
func Cancellation(tracker *Cancellations, opts ...CancelOption) kernel.Middleware {
	cfg := &cancelConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	return kernel.MiddlewareFunc(func(ctx context.Context, req *protocol.Request, next kernel.Handler) (*protocol.Response, error) {
		if req.Method == protocol.MethodCancel {
			var p CancelParams
			if err := json.Unmarshal(req.Params, &p); err != nil || len(p.ID) == 0 {
				return nil, protocol.NewInvalidParams("cancel requires an id")
			}
			found := tracker.Cancel(requestKey(p.ID))
			if cfg.logger != nil {
				cfg.logger.Debug("cancel requested",
					F("target", string(p.ID)),
					F("found", found),
					F("reason", p.Reason),
				)
			}
			return protocol.NewResponse(req.ID, map[string]bool{"canceled": found}), nil
		}

		if req.IsNotification() {
			return next.Handle(ctx, req)
		}

		ctx, release := tracker.Track(ctx, requestKey(req.ID))
		defer release()
		return next.Handle(ctx, req)
	})
}

// CancelOption configures the cancellation middleware.
type CancelOption func(*cancelConfig)

type cancelConfig struct {
	logger Logger
}

// WithCancelLogger logs cancel requests at debug level.
func WithCancelLogger(l Logger) CancelOption {
	return func(c *cancelConfig) {
		c.logger = l
	}
}

// requestKey normalises ids so 1 and 1.0 match while the string "1" stays
// distinct.
func requestKey(id json.RawMessage) string {
	var v any
	if err := json.Unmarshal(id, &v); err != nil {
		return string(id)
	}
	if s, ok := v.(string); ok {
		return "s:" + s
	}
	b, _ := json.Marshal(v)
	return string(b)
}
