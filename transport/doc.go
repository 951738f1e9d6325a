// Package transport carries JSON-RPC messages between clients and a
// dispatch handler, usually a *kernel.Pipeline.
//
// Transports own the protocol edge: they decode messages, validate the
// envelope, turn handler errors into error responses and suppress replies
// to notifications. Handlers only return values or errors.
//
// # Stdio Transport
//
// Newline-delimited JSON over stdin/stdout, suitable for local tools and
// CLI integrations:
//
//	t := transport.NewStdio()
//	err := t.Serve(ctx, pipeline)
//
// # HTTP Transport
//
//	t := transport.NewHTTP(":8080",
//	    transport.WithReadTimeout(30*time.Second),
//	    transport.WithMetricsHandler("/metrics", promhttp.Handler()),
//	    transport.WithDefaultCORS(),
//	)
//	err := t.Serve(ctx, pipeline)
//
// The HTTP transport exposes the following endpoints:
//   - POST /rpc - Handle JSON-RPC requests (see WithPath)
//   - GET /health - Health check, 503 while draining
//   - GET /metrics - Only when WithMetricsHandler is set
//
// The Authorization, X-API-Key and X-Request-ID headers are forwarded to
// handlers as protocol.RequestMeta.
//
// # WebSocket Transport
//
//	t := transport.NewWebSocket(":8081")
//	err := t.Serve(ctx, pipeline)
//
// Each text frame carries one JSON-RPC message.
package transport
