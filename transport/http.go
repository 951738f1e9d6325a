package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimd "github.com/go-chi/chi/v5/middleware"

	"github.com/felixgeelhaar/relay/protocol"
)

// forwardedHeaders are copied from HTTP requests into protocol.RequestMeta.
var forwardedHeaders = []string{
	protocol.MetaAuthorization,
	protocol.MetaAPIKey,
	protocol.MetaRequestID,
}

// HTTP serves JSON-RPC over HTTP POST.
type HTTP struct {
	addr         string
	path         string
	readTimeout  time.Duration
	writeTimeout time.Duration
	maxBodyBytes int64

	corsConfig     *CORSConfig
	metricsPath    string
	metricsHandler http.Handler
	drain          drainer

	mu         sync.RWMutex
	listenAddr string
	server     *http.Server
}

// HTTPOption configures the HTTP transport.
type HTTPOption func(*HTTP)

// WithReadTimeout sets the read timeout for HTTP requests.
func WithReadTimeout(d time.Duration) HTTPOption {
	return func(h *HTTP) {
		h.readTimeout = d
	}
}

// WithWriteTimeout sets the write timeout for HTTP responses.
func WithWriteTimeout(d time.Duration) HTTPOption {
	return func(h *HTTP) {
		h.writeTimeout = d
	}
}

// WithPath sets the JSON-RPC endpoint path. Default: /rpc
func WithPath(path string) HTTPOption {
	return func(h *HTTP) {
		h.path = path
	}
}

// WithMaxBodyBytes limits the size of request bodies. Zero disables the limit.
func WithMaxBodyBytes(n int64) HTTPOption {
	return func(h *HTTP) {
		h.maxBodyBytes = n
	}
}

// WithMetricsHandler mounts h at path, typically promhttp.Handler().
func WithMetricsHandler(path string, h http.Handler) HTTPOption {
	return func(t *HTTP) {
		t.metricsPath = path
		t.metricsHandler = h
	}
}

// NewHTTP creates a new HTTP transport.
func NewHTTP(addr string, opts ...HTTPOption) *HTTP {
	h := &HTTP{
		addr:         addr,
		path:         "/rpc",
		readTimeout:  30 * time.Second,
		writeTimeout: 30 * time.Second,
		maxBodyBytes: 4 * 1024 * 1024,
		drain:        drainer{timeout: 5 * time.Second},
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Addr returns the configured address.
func (h *HTTP) Addr() string {
	return h.addr
}

// ListenAddr returns the actual address the server is listening on.
func (h *HTTP) ListenAddr() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.listenAddr
}

// Serve starts the HTTP server and handles requests until ctx is canceled.
// On cancellation new requests are refused while in-flight requests drain.
func (h *HTTP) Serve(ctx context.Context, handler Handler) error {
	listener, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	h.mu.Lock()
	h.listenAddr = listener.Addr().String()
	h.server = &http.Server{
		Handler:      h.Router(handler),
		ReadTimeout:  h.readTimeout,
		WriteTimeout: h.writeTimeout,
	}
	server := h.server
	h.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		drainErr := h.drain.shutdown(context.Background())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.drain.timeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if drainErr != nil {
			return drainErr
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Router builds the HTTP handler serving the JSON-RPC endpoint, /health and
// the optional metrics endpoint.
func (h *HTTP) Router(handler Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(chimd.Recoverer)

	r.Get("/health", h.handleHealth)
	if h.metricsHandler != nil {
		r.Method(http.MethodGet, h.metricsPath, h.metricsHandler)
	}
	r.Post(h.path, func(w http.ResponseWriter, req *http.Request) {
		h.handleRPC(w, req, handler)
	})

	if h.corsConfig != nil {
		return newCORSPolicy(*h.corsConfig).wrap(r)
	}
	return r
}

// Draining reports whether the transport has stopped accepting requests.
func (h *HTTP) Draining() bool {
	return h.drain.isDraining()
}

func (h *HTTP) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	status, code := "ok", http.StatusOK
	if h.drain.isDraining() {
		status, code = "draining", http.StatusServiceUnavailable
	}
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (h *HTTP) handleRPC(w http.ResponseWriter, r *http.Request, handler Handler) {
	w.Header().Set("Content-Type", "application/json")

	if !h.drain.enter() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(protocol.NewErrorResponse(nil, protocol.NewUnavailable("server is shutting down")))
		return
	}
	defer h.drain.leave()

	body := r.Body
	if h.maxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			_ = json.NewEncoder(w).Encode(protocol.NewErrorResponse(nil, protocol.NewInvalidRequest("request body too large")))
			return
		}
		_ = json.NewEncoder(w).Encode(protocol.NewErrorResponse(nil, protocol.NewParseError(err.Error())))
		return
	}

	resp := Dispatch(requestContext(r), handler, data)
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// requestContext attaches the forwarded headers as request metadata.
func requestContext(r *http.Request) context.Context {
	meta := protocol.RequestMetaFromContext(r.Context()).Clone(len(forwardedHeaders))
	for _, name := range forwardedHeaders {
		if v := r.Header.Get(name); v != "" {
			meta[name] = v
		}
	}
	return protocol.ContextWithRequestMeta(r.Context(), meta)
}
