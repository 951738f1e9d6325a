// Package testutil provides testing utilities for relay pipelines.
//
// It offers an in-memory client that speaks JSON-RPC to any transport.Handler,
// a line-oriented mock for the stdio transport, and small building blocks for
// observing a traversal: a Recorder that logs which middleware ran and a
// CountingHandler fallback.
//
// Example usage:
//
//	func TestPipeline(t *testing.T) {
//	    rec := testutil.NewRecorder()
//	    fallback := testutil.NewCountingHandler("done")
//	    p := relay.NewPipeline(fallback, rec.Entry("auth"), rec.Entry("log"))
//
//	    tc := testutil.NewTestClient(t, p)
//	    result, err := tc.Call("anything", nil)
//	    if err != nil || result != "done" {
//	        t.Fatalf("Call() = %v, %v", result, err)
//	    }
//	    // rec.Visits() == []string{"auth", "log"}
//	}
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"sync"
	"testing"

	"github.com/felixgeelhaar/relay/kernel"
	"github.com/felixgeelhaar/relay/protocol"
	"github.com/felixgeelhaar/relay/transport"
)

// TestClient sends JSON-RPC requests to a handler in memory. Requests and
// responses are encoded to JSON and back, so results look exactly as a
// remote client would see them.
type TestClient struct {
	t       testing.TB
	handler transport.Handler
	ctx     context.Context
	reqID   int64
	mu      sync.Mutex
}

// NewTestClient creates a test client for handler.
func NewTestClient(t testing.TB, handler transport.Handler) *TestClient {
	t.Helper()
	return &TestClient{
		t:       t,
		handler: handler,
		ctx:     context.Background(),
	}
}

// WithMeta returns a copy of the client that attaches meta to every request,
// as the HTTP transport does with forwarded headers.
func (tc *TestClient) WithMeta(meta protocol.RequestMeta) *TestClient {
	return &TestClient{
		t:       tc.t,
		handler: tc.handler,
		ctx:     protocol.ContextWithRequestMeta(tc.ctx, meta),
	}
}

func (tc *TestClient) nextID() json.RawMessage {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.reqID++
	return json.RawMessage(strconv.FormatInt(tc.reqID, 10))
}

// SendRequest sends a request and returns the decoded response.
func (tc *TestClient) SendRequest(method string, params any) (*protocol.Response, error) {
	tc.t.Helper()
	return tc.send(tc.nextID(), method, params)
}

// Notify sends a notification. It fails if the handler produced a reply.
func (tc *TestClient) Notify(method string, params any) error {
	tc.t.Helper()
	resp, err := tc.send(nil, method, params)
	if err != nil {
		return err
	}
	if resp != nil {
		return fmt.Errorf("unexpected reply to notification %q: %+v", method, resp)
	}
	return nil
}

// Call sends a request and returns its result. A JSON-RPC error response is
// returned as a *protocol.Error.
func (tc *TestClient) Call(method string, params any) (any, error) {
	tc.t.Helper()

	resp, err := tc.SendRequest(method, params)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp.Result, nil
}

// Ping sends a ping request.
func (tc *TestClient) Ping() error {
	tc.t.Helper()
	_, err := tc.Call(protocol.MethodPing, nil)
	return err
}

// AssertErrorCode calls method and fails the test unless the response is an
// error carrying code.
func (tc *TestClient) AssertErrorCode(method string, params any, code int) {
	tc.t.Helper()

	resp, err := tc.SendRequest(method, params)
	if err != nil {
		tc.t.Fatalf("%s: request failed: %v", method, err)
	}
	if resp.Error == nil {
		tc.t.Fatalf("%s: expected error code %d, got result %v", method, code, resp.Result)
	}
	if resp.Error.Code != code {
		tc.t.Errorf("%s: error code = %d (%s), want %d", method, resp.Error.Code, resp.Error.Message, code)
	}
}

func (tc *TestClient) send(id json.RawMessage, method string, params any) (*protocol.Response, error) {
	req := &protocol.Request{
		JSONRPC: protocol.JSONRPCVersion,
		ID:      id,
		Method:  method,
	}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal params: %w", err)
		}
		req.Params = data
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	resp := transport.Dispatch(tc.ctx, tc.handler, data)
	if resp == nil {
		return nil, nil
	}

	out, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}
	var decoded protocol.Response
	if err := json.Unmarshal(out, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &decoded, nil
}

// Recorder records the order in which its entries are visited.
type Recorder struct {
	mu     sync.Mutex
	visits []string
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Entry returns middleware that records name and delegates to next.
func (r *Recorder) Entry(name string) kernel.Middleware {
	return kernel.MiddlewareFunc(func(ctx context.Context, req *protocol.Request, next kernel.Handler) (*protocol.Response, error) {
		r.record(name)
		return next.Handle(ctx, req)
	})
}

// Stop returns middleware that records name and answers with result
// without delegating.
func (r *Recorder) Stop(name string, result any) kernel.Middleware {
	return kernel.MiddlewareFunc(func(ctx context.Context, req *protocol.Request, next kernel.Handler) (*protocol.Response, error) {
		r.record(name)
		return protocol.NewResponse(req.ID, result), nil
	})
}

func (r *Recorder) record(name string) {
	r.mu.Lock()
	r.visits = append(r.visits, name)
	r.mu.Unlock()
}

// Visits returns a copy of the recorded names in visit order.
func (r *Recorder) Visits() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.visits))
	copy(out, r.visits)
	return out
}

// Reset clears recorded visits.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.visits = nil
	r.mu.Unlock()
}

// CountingHandler is a fallback handler that counts its calls and answers
// every request with a fixed result.
type CountingHandler struct {
	mu     sync.Mutex
	calls  int
	last   *protocol.Request
	result any
}

// NewCountingHandler creates a handler answering with result.
func NewCountingHandler(result any) *CountingHandler {
	return &CountingHandler{result: result}
}

// Handle implements kernel.Handler.
func (h *CountingHandler) Handle(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	h.mu.Lock()
	h.calls++
	h.last = req
	h.mu.Unlock()
	return protocol.NewResponse(req.ID, h.result), nil
}

// Calls returns the number of handled requests.
func (h *CountingHandler) Calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

// Last returns the most recent request, or nil.
func (h *CountingHandler) Last() *protocol.Request {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

// MockTransport holds the input and output streams of a stdio transport.
// Queue requests with SendRequest, serve the transport over Input and
// Output, then read replies with ReadResponse.
type MockTransport struct {
	in    *bytes.Buffer
	out   *bytes.Buffer
	mu    sync.Mutex
	reqID int64
}

// NewMockTransport creates a new mock transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		in:  &bytes.Buffer{},
		out: &bytes.Buffer{},
	}
}

// Input returns the stream the transport reads requests from.
func (m *MockTransport) Input() io.Reader {
	return m.in
}

// Output returns the stream the transport writes responses to.
func (m *MockTransport) Output() io.Writer {
	return &lockedWriter{m: m}
}

// SendRequest queues a request and returns its ID.
func (m *MockTransport) SendRequest(method string, params any) (json.RawMessage, error) {
	m.mu.Lock()
	m.reqID++
	id := json.RawMessage(strconv.FormatInt(m.reqID, 10))
	m.mu.Unlock()
	return id, m.write(id, method, params)
}

// SendNotification queues a notification.
func (m *MockTransport) SendNotification(method string, params any) error {
	return m.write(nil, method, params)
}

// WriteRaw queues a raw line, which need not be valid JSON.
func (m *MockTransport) WriteRaw(line string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.in.WriteString(line)
	m.in.WriteString("\n")
}

func (m *MockTransport) write(id json.RawMessage, method string, params any) error {
	req := &protocol.Request{
		JSONRPC: protocol.JSONRPCVersion,
		ID:      id,
		Method:  method,
	}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return err
		}
		req.Params = data
	}

	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	m.WriteRaw(string(data))
	return nil
}

// ReadResponse reads the next response. It returns io.EOF when no more
// responses are buffered.
func (m *MockTransport) ReadResponse() (*protocol.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	line, err := m.out.ReadBytes('\n')
	if err != nil && err != io.EOF {
		return nil, err
	}
	if len(bytes.TrimSpace(line)) == 0 {
		return nil, io.EOF
	}

	var resp protocol.Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type lockedWriter struct {
	m *MockTransport
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.m.mu.Lock()
	defer w.m.mu.Unlock()
	return w.m.out.Write(p)
}
