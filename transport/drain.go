package transport

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// drainer refuses new HTTP requests once shutdown starts and waits for the
// admitted ones to finish.
type drainer struct {
	timeout time.Duration
	delay   time.Duration

	draining atomic.Bool
	inFlight atomic.Int64
}

// enter admits a request. It returns false once draining has begun; the
// counter is raised before the check so shutdown never misses an admitted
// request.
func (d *drainer) enter() bool {
	d.inFlight.Add(1)
	if d.draining.Load() {
		d.inFlight.Add(-1)
		return false
	}
	return true
}

func (d *drainer) leave() {
	d.inFlight.Add(-1)
}

func (d *drainer) isDraining() bool {
	return d.draining.Load()
}

// shutdown keeps admitting requests for the drain delay, then stops and
// waits up to timeout for in-flight requests.
func (d *drainer) shutdown(ctx context.Context) error {
	if d.delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.delay):
		}
	}
	d.draining.Store(true)

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		n := d.inFlight.Load()
		if n == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("transport: %d requests still in flight: %w", n, ctx.Err())
		case <-ticker.C:
		}
	}
}

// WithShutdownTimeout bounds how long the HTTP transport waits for
// in-flight requests on shutdown.
func WithShutdownTimeout(d time.Duration) HTTPOption {
	return func(h *HTTP) {
		h.drain.timeout = d
	}
}

// WithShutdownDrainDelay keeps the HTTP transport accepting requests for d
// after shutdown starts, so load balancers can observe /health first.
func WithShutdownDrainDelay(d time.Duration) HTTPOption {
	return func(h *HTTP) {
		h.drain.delay = d
	}
}
