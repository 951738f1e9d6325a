package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/felixgeelhaar/relay/protocol"
)

// ErrClosed is returned by Send once the transport is closed or its
// connection has ended.
var ErrClosed = errors.New("client: transport closed")

// pending matches responses read from a stream to the callers waiting on
// them.
type pending struct {
	mu    sync.Mutex
	calls map[string]chan *protocol.Response
	done  chan struct{}
	err   error
}

func newPending() *pending {
	return &pending{
		calls: make(map[string]chan *protocol.Response),
		done:  make(chan struct{}),
	}
}

func (p *pending) register(id json.RawMessage) (chan *protocol.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	key := idKey(id)
	if _, dup := p.calls[key]; dup {
		return nil, errors.New("client: duplicate request id " + key)
	}
	ch := make(chan *protocol.Response, 1)
	p.calls[key] = ch
	return ch, nil
}

func (p *pending) forget(id json.RawMessage) {
	p.mu.Lock()
	delete(p.calls, idKey(id))
	p.mu.Unlock()
}

// deliver routes resp to its caller. Responses nobody waits for, and
// duplicates for an id already answered, are dropped.
func (p *pending) deliver(resp *protocol.Response) bool {
	if len(resp.ID) == 0 {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.calls[idKey(resp.ID)]
	if !ok {
		return false
	}
	select {
	case ch <- resp:
		return true
	default:
		return false
	}
}

// fail releases every waiter with err. Only the first call has effect.
func (p *pending) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return
	}
	if err == nil {
		err = ErrClosed
	}
	p.err = err
	close(p.done)
}

func (p *pending) wait(ctx context.Context, ch chan *protocol.Response) (*protocol.Response, error) {
	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		// A response may have raced the close.
		select {
		case resp := <-ch:
			return resp, nil
		default:
		}
		p.mu.Lock()
		err := p.err
		p.mu.Unlock()
		return nil, err
	}
}
