package kernel

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/felixgeelhaar/relay/protocol"
)

func TestPipeline_Handle(t *testing.T) {
	t.Run("each call is a fresh traversal", func(t *testing.T) {
		var visits []string
		pass := func(name string) Middleware {
			return MiddlewareFunc(func(ctx context.Context, req *protocol.Request, next Handler) (*protocol.Response, error) {
				visits = append(visits, name)
				return next.Handle(ctx, req)
			})
		}
		fallback := &countingHandler{resp: protocol.NewResponse(nil, "done")}

		p := NewPipeline(fallback, pass("a"), NewQueue(pass("nested")), pass("b"))
		for i := 0; i < 3; i++ {
			resp, err := p.Handle(context.Background(), &protocol.Request{})
			if err != nil {
				t.Fatalf("call %d: unexpected error: %v", i, err)
			}
			if resp.Result != "done" {
				t.Errorf("call %d: result = %v, want done", i, resp.Result)
			}
		}

		if len(visits) != 9 {
			t.Fatalf("visits = %v, want 9 entries", visits)
		}
		if fallback.calls != 3 {
			t.Errorf("fallback calls = %d, want 3", fallback.calls)
		}
	})

	t.Run("template queue is never advanced", func(t *testing.T) {
		nested := NewQueue(MiddlewareFunc(func(ctx context.Context, req *protocol.Request, next Handler) (*protocol.Response, error) {
			return next.Handle(ctx, req)
		}))
		p := NewPipeline(&countingHandler{}, nested)
		_, _ = p.Handle(context.Background(), &protocol.Request{})

		if nested.Position() != -1 {
			t.Errorf("template Position() = %d, want -1", nested.Position())
		}
	})

	t.Run("use appends to template", func(t *testing.T) {
		p := NewPipeline(&countingHandler{})
		if p.Len() != 0 {
			t.Fatalf("Len() = %d, want 0", p.Len())
		}
		hit := false
		p.Use(MiddlewareFunc(func(ctx context.Context, req *protocol.Request, next Handler) (*protocol.Response, error) {
			hit = true
			return protocol.NewResponse(nil, "used"), nil
		}))
		if p.Len() != 1 {
			t.Errorf("Len() = %d, want 1", p.Len())
		}
		resp, _ := p.Handle(context.Background(), &protocol.Request{})
		if !hit || resp.Result != "used" {
			t.Errorf("middleware added with Use was not invoked")
		}
	})

	t.Run("nil fallback panics", func(t *testing.T) {
		defer func() {
			if r := recover(); r != ErrNilFallback {
				t.Errorf("recover() = %v, want ErrNilFallback", r)
			}
		}()
		NewPipeline(nil)
	})
}

func TestPipeline_Concurrent(t *testing.T) {
	var visits atomic.Int64
	pass := MiddlewareFunc(func(ctx context.Context, req *protocol.Request, next Handler) (*protocol.Response, error) {
		visits.Add(1)
		return next.Handle(ctx, req)
	})
	fallback := HandlerFunc(func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
		return protocol.NewResponse(req.ID, req.Method), nil
	})

	p := NewPipeline(fallback, pass, NewQueue(pass), pass)

	const workers = 50
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := p.Handle(context.Background(), &protocol.Request{Method: "m"})
			if err != nil {
				errs <- err
				return
			}
			if resp.Result != "m" {
				errs <- protocol.NewInternalError("unexpected result")
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent handle failed: %v", err)
	}
	if got := visits.Load(); got != workers*3 {
		t.Errorf("visits = %d, want %d", got, workers*3)
	}
}
