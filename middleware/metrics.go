package middleware

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/felixgeelhaar/relay/kernel"
	"github.com/felixgeelhaar/relay/protocol"
)

// DurationBuckets are histogram buckets for dispatch latency, from 1ms to 10s.
var DurationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10}

// MetricsOption configures the Prometheus middleware.
type MetricsOption func(*metricsConfig)

type metricsConfig struct {
	registerer  prometheus.Registerer
	namespace   string
	methodLimit int
}

// Method label values used when the client-supplied name is not recorded.
const (
	MethodLabelUnknown = "unknown"
	MethodLabelOther   = "other"
)

// WithRegisterer sets the registry collectors are registered with.
// Defaults to prometheus.DefaultRegisterer.
func WithRegisterer(r prometheus.Registerer) MetricsOption {
	return func(c *metricsConfig) {
		c.registerer = r
	}
}

// WithNamespace sets the metric name prefix. Defaults to "relay".
func WithNamespace(ns string) MetricsOption {
	return func(c *metricsConfig) {
		c.namespace = ns
	}
}

// WithMethodLimit caps the number of distinct method label values. Methods
// seen after the cap is reached are recorded as "other". Defaults to 100.
func WithMethodLimit(n int) MetricsOption {
	return func(c *metricsConfig) {
		c.methodLimit = n
	}
}

// Metrics returns middleware that records Prometheus request counts, errors
// and latency for everything after it in the queue.
//
// Collectors already registered under the same names are reused, so
// building several stacks against one registry is safe.
//
// Method names come from clients, so requests answered with method not
// found or unauthorized are recorded under "unknown", and label values are
// capped by WithMethodLimit.
func Metrics(opts ...MetricsOption) kernel.Middleware {
	cfg := &metricsConfig{
		registerer:  prometheus.DefaultRegisterer,
		namespace:   "relay",
		methodLimit: 100,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	labels := &methodLabels{limit: cfg.methodLimit, seen: make(map[string]struct{})}

	requests := register(cfg.registerer, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.namespace,
			Name:      "requests_total",
			Help:      "Total dispatched requests",
		},
		[]string{"method", "status"},
	))
	duration := register(cfg.registerer, prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: cfg.namespace,
			Name:      "request_duration_seconds",
			Help:      "Dispatch duration",
			Buckets:   DurationBuckets,
		},
		[]string{"method"},
	))
	failures := register(cfg.registerer, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.namespace,
			Name:      "errors_total",
			Help:      "Failed requests by JSON-RPC error code",
		},
		[]string{"method", "code"},
	))

	return kernel.MiddlewareFunc(func(ctx context.Context, req *protocol.Request, next kernel.Handler) (*protocol.Response, error) {
		start := time.Now()
		resp, err := next.Handle(ctx, req)
		elapsed := time.Since(start)

		code, failed := failureCode(resp, err)
		method := labels.label(req.Method, code, failed)
		duration.WithLabelValues(method).Observe(elapsed.Seconds())

		status := "ok"
		if failed {
			status = "error"
			failures.WithLabelValues(method, strconv.Itoa(code)).Inc()
		}
		requests.WithLabelValues(method, status).Inc()

		return resp, err
	})
}

// methodLabels bounds the method label set.
type methodLabels struct {
	mu    sync.Mutex
	limit int
	seen  map[string]struct{}
}

func (l *methodLabels) label(method string, code int, failed bool) string {
	if failed && (code == protocol.CodeMethodNotFound || code == protocol.CodeUnauthorized) {
		return MethodLabelUnknown
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.seen[method]; ok {
		return method
	}
	if len(l.seen) >= l.limit {
		return MethodLabelOther
	}
	l.seen[method] = struct{}{}
	return method
}

// register registers c, returning the existing collector when one with the
// same descriptor is already present.
func register[C prometheus.Collector](r prometheus.Registerer, c C) C {
	if err := r.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}
