package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/felixgeelhaar/relay/protocol"
)

// WebSocketTransport multiplexes requests over a single WebSocket
// connection. Responses are matched to callers by id.
type WebSocketTransport struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	pending *pending

	closeOnce sync.Once
	readWG    sync.WaitGroup
}

// DialWebSocket connects to url. header is sent with the upgrade request
// and applies to every message on the connection.
func DialWebSocket(ctx context.Context, url string, header http.Header) (*WebSocketTransport, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("dial websocket: %w", err)
	}

	t := &WebSocketTransport{
		conn:    conn,
		pending: newPending(),
	}
	t.readWG.Add(1)
	go t.readResponses()
	return t, nil
}

// Send writes req as a text message and waits for its response.
func (t *WebSocketTransport) Send(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	if req.IsNotification() {
		return nil, t.write(req)
	}

	ch, err := t.pending.register(req.ID)
	if err != nil {
		return nil, err
	}
	defer t.pending.forget(req.ID)

	if err := t.write(req); err != nil {
		return nil, err
	}
	return t.pending.wait(ctx, ch)
}

func (t *WebSocketTransport) write(req *protocol.Request) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	return nil
}

// Close sends a close frame and tears down the connection.
func (t *WebSocketTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.pending.fail(ErrClosed)

		t.writeMu.Lock()
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		t.writeMu.Unlock()

		err = t.conn.Close()
		t.readWG.Wait()
	})
	return err
}

func (t *WebSocketTransport) readResponses() {
	defer t.readWG.Done()

	for {
		_, message, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				t.pending.fail(ErrClosed)
			} else {
				t.pending.fail(fmt.Errorf("%w: %v", ErrClosed, err))
			}
			return
		}

		var resp protocol.Response
		if err := json.Unmarshal(message, &resp); err != nil {
			continue
		}
		t.pending.deliver(&resp)
	}
}
