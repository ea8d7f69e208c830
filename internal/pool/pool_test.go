package pool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ocx/modelrun/internal/breaker"
	"github.com/ocx/modelrun/internal/governor"
	"github.com/ocx/modelrun/internal/worker"
)

type echoOp struct {
	env *worker.Envelope[string, string]
}

func (o *echoOp) Execute(ctx context.Context, model any) {
	o.env.SendResult(model.(string)+":"+o.env.Req, nil)
}

func echoDispatch(p *Pool, key, req string) (string, error) {
	return Dispatch(p, key, req, func(e *worker.Envelope[string, string]) worker.Op {
		return &echoOp{env: e}
	})
}

func newTestPool(t *testing.T) *Pool {
	t.Helper()
	cfg := DefaultConfig()
	cfg.RequestTimeout = 200 * time.Millisecond
	cfg.IdleThreshold = 50 * time.Millisecond
	cfg.IdleCheckPeriod = 10 * time.Millisecond
	return New("test", cfg, governor.New(100000), breaker.NewManager(breaker.DefaultConfig()))
}

func waitReady(t *testing.T, p *Pool, key string) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		if ws := p.aliveWorkers(key); len(ws) > 0 && ws[0].State() == worker.Ready {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("worker for %s never reached Ready", key)
		case <-time.After(time.Millisecond):
		}
	}
}

func TestSpawnWorkerIsIdempotentPerKey(t *testing.T) {
	p := newTestPool(t)
	factory := func() (any, error) { return "m", nil }

	h1, err := p.SpawnWorker("k1", 10, factory)
	if err != nil {
		t.Fatalf("first spawn: %v", err)
	}
	waitReady(t, p, "k1")

	h2, err := p.SpawnWorker("k1", 10, factory)
	if err != nil {
		t.Fatalf("second spawn: %v", err)
	}
	if h1.ID != h2.ID {
		t.Error("expected second spawn for same key to be a no-op returning the existing worker")
	}
	if len(p.aliveWorkers("k1")) != 1 {
		t.Errorf("alive workers for k1 = %d, want 1", len(p.aliveWorkers("k1")))
	}
}

func TestDispatchRoundTrip(t *testing.T) {
	p := newTestPool(t)
	if _, err := p.SpawnWorker("k1", 10, func() (any, error) { return "model-a", nil }); err != nil {
		t.Fatalf("spawn: %v", err)
	}
	waitReady(t, p, "k1")

	out, err := echoDispatch(p, "k1", "hello")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if out != "model-a:hello" {
		t.Errorf("out = %q, want %q", out, "model-a:hello")
	}
}

func TestDispatchNoWorkersReturnsErrNoWorkers(t *testing.T) {
	p := newTestPool(t)
	_, err := echoDispatch(p, "missing", "x")
	if !errors.Is(err, ErrNoWorkers) {
		t.Errorf("err = %v, want ErrNoWorkers", err)
	}
}

func TestDispatchAfterShutdownReturnsErrShuttingDown(t *testing.T) {
	p := newTestPool(t)
	p.Shutdown(time.Second)
	_, err := echoDispatch(p, "k1", "x")
	if !errors.Is(err, ErrShuttingDown) {
		t.Errorf("err = %v, want ErrShuttingDown", err)
	}
}

func TestSpawnAfterShutdownFails(t *testing.T) {
	p := newTestPool(t)
	p.Shutdown(time.Second)
	_, err := p.SpawnWorker("k2", 10, func() (any, error) { return "m", nil })
	if !errors.Is(err, ErrShuttingDown) {
		t.Errorf("err = %v, want ErrShuttingDown", err)
	}
}

func TestMemoryExhaustedBlocksSpawn(t *testing.T) {
	p := New("test", DefaultConfig(), governor.New(5), breaker.NewManager(breaker.DefaultConfig()))
	_, err := p.SpawnWorker("big", 10, func() (any, error) { return "m", nil })
	if !errors.Is(err, ErrMemoryExhausted) {
		t.Errorf("err = %v, want ErrMemoryExhausted", err)
	}
}
