package kernel

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/felixgeelhaar/relay/protocol"
)

// countingHandler counts calls and returns a fixed response.
type countingHandler struct {
	calls int
	resp  *protocol.Response
	err   error
}

func (h *countingHandler) Handle(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	h.calls++
	return h.resp, h.err
}

func TestNew(t *testing.T) {
	t.Run("nil fallback panics", func(t *testing.T) {
		defer func() {
			if r := recover(); r != ErrNilFallback {
				t.Errorf("recover() = %v, want ErrNilFallback", r)
			}
		}()
		New(NewQueue(), nil)
	})

	t.Run("nil queue is empty", func(t *testing.T) {
		fallback := &countingHandler{resp: protocol.NewResponse(nil, "fallback")}
		resp, err := New(nil, fallback).Handle(context.Background(), &protocol.Request{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp != fallback.resp {
			t.Errorf("resp = %v, want fallback response", resp)
		}
	})
}

func TestKernel_Handle(t *testing.T) {
	t.Run("empty queue uses fallback", func(t *testing.T) {
		want := protocol.NewResponse(json.RawMessage(`1`), "fallback")
		fallback := &countingHandler{resp: want}
		k := New(NewQueue(), fallback)

		got, err := k.Handle(context.Background(), &protocol.Request{Method: "test"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Errorf("Handle() = %v, want %v", got, want)
		}
		if fallback.calls != 1 {
			t.Errorf("fallback calls = %d, want 1", fallback.calls)
		}
	})

	t.Run("delegate then short-circuit", func(t *testing.T) {
		want := protocol.NewResponse(json.RawMessage(`1`), "second")
		fallback := &countingHandler{}
		delegateCalls, firstCalls, secondCalls := 0, 0, 0

		first := MiddlewareFunc(func(ctx context.Context, req *protocol.Request, next Handler) (*protocol.Response, error) {
			firstCalls++
			delegateCalls++
			return next.Handle(ctx, req)
		})
		second := MiddlewareFunc(func(ctx context.Context, req *protocol.Request, next Handler) (*protocol.Response, error) {
			secondCalls++
			return want, nil
		})

		k := New(NewQueue(first, second), fallback)
		got, err := k.Handle(context.Background(), &protocol.Request{Method: "test"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Errorf("Handle() = %v, want %v", got, want)
		}
		if firstCalls != 1 || delegateCalls != 1 {
			t.Errorf("first calls = %d, delegate calls = %d, want 1 and 1", firstCalls, delegateCalls)
		}
		if secondCalls != 1 {
			t.Errorf("second calls = %d, want 1", secondCalls)
		}
		if fallback.calls != 0 {
			t.Errorf("fallback calls = %d, want 0", fallback.calls)
		}
	})

	t.Run("delegating through every middleware reaches fallback once", func(t *testing.T) {
		want := protocol.NewResponse(nil, "fallback")
		fallback := &countingHandler{resp: want}
		order := []string{}

		pass := func(name string) Middleware {
			return MiddlewareFunc(func(ctx context.Context, req *protocol.Request, next Handler) (*protocol.Response, error) {
				order = append(order, name+"-before")
				resp, err := next.Handle(ctx, req)
				order = append(order, name+"-after")
				return resp, err
			})
		}

		k := New(NewQueue(pass("m1"), pass("m2"), pass("m3")), fallback)
		got, err := k.Handle(context.Background(), &protocol.Request{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Errorf("Handle() = %v, want fallback response", got)
		}
		if fallback.calls != 1 {
			t.Errorf("fallback calls = %d, want 1", fallback.calls)
		}

		expected := []string{"m1-before", "m2-before", "m3-before", "m3-after", "m2-after", "m1-after"}
		if len(order) != len(expected) {
			t.Fatalf("order = %v, want %v", order, expected)
		}
		for i, v := range expected {
			if order[i] != v {
				t.Errorf("order[%d] = %q, want %q", i, order[i], v)
			}
		}
	})

	t.Run("short-circuit stops the chain", func(t *testing.T) {
		fallback := &countingHandler{}
		laterCalled := false

		block := MiddlewareFunc(func(ctx context.Context, req *protocol.Request, next Handler) (*protocol.Response, error) {
			return nil, protocol.NewUnauthorized("blocked")
		})
		later := MiddlewareFunc(func(ctx context.Context, req *protocol.Request, next Handler) (*protocol.Response, error) {
			laterCalled = true
			return next.Handle(ctx, req)
		})

		queue := NewQueue(block, later)
		_, err := New(queue, fallback).Handle(context.Background(), &protocol.Request{})
		if !errors.Is(err, protocol.NewUnauthorized("")) {
			t.Errorf("error = %v, want unauthorized", err)
		}
		if laterCalled {
			t.Error("later middleware should not have been called")
		}
		if fallback.calls != 0 {
			t.Errorf("fallback calls = %d, want 0", fallback.calls)
		}
		if queue.Position() != 0 {
			t.Errorf("Position() = %d, want 0", queue.Position())
		}
	})

	t.Run("nested queues", func(t *testing.T) {
		want := protocol.NewResponse(nil, "nested")
		fallback := &countingHandler{}
		counter := -1
		first, second := -1, -1

		m1 := MiddlewareFunc(func(ctx context.Context, req *protocol.Request, next Handler) (*protocol.Response, error) {
			counter++
			first = counter
			return next.Handle(ctx, req)
		})
		m2 := MiddlewareFunc(func(ctx context.Context, req *protocol.Request, next Handler) (*protocol.Response, error) {
			counter++
			second = counter
			return want, nil
		})

		nested := NewQueue(m2)
		outer := NewQueue(m1, nested)
		got, err := New(outer, fallback).Handle(context.Background(), &protocol.Request{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Errorf("Handle() = %v, want %v", got, want)
		}
		if first != 0 || second != 1 {
			t.Errorf("counters = (%d, %d), want (0, 1)", first, second)
		}
		if outer.Position() != 1 {
			t.Errorf("outer Position() = %d, want 1", outer.Position())
		}
		if nested.Position() != 0 {
			t.Errorf("nested Position() = %d, want 0", nested.Position())
		}
		if fallback.calls != 0 {
			t.Errorf("fallback calls = %d, want 0", fallback.calls)
		}
	})

	t.Run("nested middleware delegates to the outer kernel", func(t *testing.T) {
		fallback := &countingHandler{resp: protocol.NewResponse(nil, "fallback")}
		var visits []string

		pass := func(name string) Middleware {
			return MiddlewareFunc(func(ctx context.Context, req *protocol.Request, next Handler) (*protocol.Response, error) {
				visits = append(visits, name)
				return next.Handle(ctx, req)
			})
		}

		nested := NewQueue(pass("inner"))
		outer := NewQueue(pass("a"), nested, pass("b"))
		if _, err := New(outer, fallback).Handle(context.Background(), &protocol.Request{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		expected := []string{"a", "inner", "b"}
		if len(visits) != len(expected) {
			t.Fatalf("visits = %v, want %v", visits, expected)
		}
		for i, v := range expected {
			if visits[i] != v {
				t.Errorf("visits[%d] = %q, want %q", i, visits[i], v)
			}
		}
		if fallback.calls != 1 {
			t.Errorf("fallback calls = %d, want 1", fallback.calls)
		}
	})
}

func TestKernel_ErrorPropagation(t *testing.T) {
	t.Run("middleware error is returned unchanged", func(t *testing.T) {
		sentinel := errors.New("middleware failed")
		pass := MiddlewareFunc(func(ctx context.Context, req *protocol.Request, next Handler) (*protocol.Response, error) {
			return next.Handle(ctx, req)
		})
		fail := MiddlewareFunc(func(ctx context.Context, req *protocol.Request, next Handler) (*protocol.Response, error) {
			return nil, sentinel
		})

		_, err := New(NewQueue(pass, fail), &countingHandler{}).Handle(context.Background(), &protocol.Request{})
		if err != sentinel {
			t.Errorf("error = %v, want the exact middleware error", err)
		}
	})

	t.Run("fallback error is returned unchanged", func(t *testing.T) {
		sentinel := errors.New("fallback failed")
		fallback := &countingHandler{err: sentinel}

		_, err := New(NewQueue(), fallback).Handle(context.Background(), &protocol.Request{})
		if err != sentinel {
			t.Errorf("error = %v, want the exact fallback error", err)
		}
	})

	t.Run("dispatcher skipping Processed gets out of range", func(t *testing.T) {
		queue := NewQueue()
		var unchecked Handler
		unchecked = HandlerFunc(func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			return queue.Process(ctx, req, NewProxy(unchecked))
		})

		_, err := unchecked.Handle(context.Background(), &protocol.Request{})
		if !errors.Is(err, ErrOutOfRange) {
			t.Errorf("error = %v, want ErrOutOfRange", err)
		}
	})
}

func TestKernel_ProxyIdentity(t *testing.T) {
	var seen []Handler
	capture := MiddlewareFunc(func(ctx context.Context, req *protocol.Request, next Handler) (*protocol.Response, error) {
		seen = append(seen, next)
		return next.Handle(ctx, req)
	})

	k := New(NewQueue(capture, capture, capture), &countingHandler{})
	if _, err := k.Handle(context.Background(), &protocol.Request{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(seen) != 3 {
		t.Fatalf("captured %d handlers, want 3", len(seen))
	}
	for i, h := range seen {
		if h != Handler(k.proxy) {
			t.Errorf("handler %d is not the kernel's proxy", i)
		}
		if _, ok := h.(*Kernel); ok {
			t.Errorf("handler %d exposes the kernel itself", i)
		}
	}
}

func TestKernel_ExhaustedKernelUsesFallback(t *testing.T) {
	fallback := &countingHandler{resp: protocol.NewResponse(nil, "fallback")}
	calls := 0
	once := MiddlewareFunc(func(ctx context.Context, req *protocol.Request, next Handler) (*protocol.Response, error) {
		calls++
		return protocol.NewResponse(nil, "middleware"), nil
	})

	k := New(NewQueue(once), fallback)
	first, _ := k.Handle(context.Background(), &protocol.Request{})
	second, _ := k.Handle(context.Background(), &protocol.Request{})

	if first.Result != "middleware" {
		t.Errorf("first result = %v, want middleware", first.Result)
	}
	if second.Result != "fallback" {
		t.Errorf("second result = %v, want fallback", second.Result)
	}
	if calls != 1 || fallback.calls != 1 {
		t.Errorf("middleware calls = %d, fallback calls = %d, want 1 and 1", calls, fallback.calls)
	}
}
