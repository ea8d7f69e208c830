package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ocx/modelrun/internal/breaker"
	"github.com/ocx/modelrun/internal/governor"
	"github.com/ocx/modelrun/internal/pool"
	"github.com/ocx/modelrun/internal/registry"
)

type fakeEmbedder struct{ dim int }

func (f fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return make([]float32, f.dim), nil
}
func (f fakeEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
	}
	return out, nil
}

func newTestDispatcher(t *testing.T, ceilingMB int64) (*Dispatcher, *registry.Registry) {
	t.Helper()
	reg := registry.New()
	gov := governor.New(ceilingMB)
	brk := breaker.NewManager(breaker.DefaultConfig())
	cfg := pool.DefaultConfig()
	cfg.RequestTimeout = 300 * time.Millisecond
	return New(reg, gov, brk, cfg), reg
}

func TestUnknownModelReturnsErrUnknownModel(t *testing.T) {
	d, _ := newTestDispatcher(t, 10000)
	err := d.EnsureWorkers("nope", registry.TextEmbedding)
	if !errors.Is(err, ErrUnknownModel) {
		t.Errorf("err = %v, want ErrUnknownModel", err)
	}
}

func TestCapabilityMismatchReturnsErrCapabilityMismatch(t *testing.T) {
	d, reg := newTestDispatcher(t, 10000)
	reg.Register(registry.ModelInfo{
		Key:          "vision-only",
		Capabilities: registry.Vision,
		EstMemoryMB:  10,
	}, func() (any, error) { return struct{}{}, nil })

	err := d.EnsureWorkers("vision-only", registry.TextEmbedding)
	if !errors.Is(err, ErrCapabilityMismatch) {
		t.Errorf("err = %v, want ErrCapabilityMismatch", err)
	}
}

func TestEnsureWorkersIsIdempotent(t *testing.T) {
	d, reg := newTestDispatcher(t, 10000)
	reg.Register(registry.ModelInfo{
		Key:          "bge-small",
		Capabilities: registry.TextEmbedding,
		EstMemoryMB:  100,
	}, func() (any, error) { return fakeEmbedder{dim: 8}, nil })

	if err := d.EnsureWorkers("bge-small", registry.TextEmbedding); err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	if err := d.EnsureWorkers("bge-small", registry.TextEmbedding); err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	workers := d.TextEmbedding.Pool.AllWorkers()
	count := 0
	for _, h := range workers {
		if h.RegistryKey == "bge-small" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("worker count for bge-small = %d, want 1", count)
	}
}

func TestEndToEndEmbedDispatch(t *testing.T) {
	d, reg := newTestDispatcher(t, 10000)
	reg.Register(registry.ModelInfo{
		Key:          "bge-small",
		Capabilities: registry.TextEmbedding,
		EstMemoryMB:  100,
	}, func() (any, error) { return fakeEmbedder{dim: 16}, nil })

	if err := d.EnsureWorkers("bge-small", registry.TextEmbedding); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	deadline := time.After(time.Second)
	for {
		v, err := d.TextEmbedding.Embed("bge-small", "hello")
		if err == nil {
			if len(v) != 16 {
				t.Fatalf("dim = %d, want 16", len(v))
			}
			return
		}
		select {
		case <-deadline:
			t.Fatalf("embed never succeeded: %v", err)
		case <-time.After(time.Millisecond):
		}
	}
}

func TestMemoryExhaustedTriggersEvictionAndRetrySucceeds(t *testing.T) {
	d, reg := newTestDispatcher(t, 150)
	reg.Register(registry.ModelInfo{
		Key:          "old-model",
		Capabilities: registry.TextEmbedding,
		EstMemoryMB:  100,
	}, func() (any, error) { return fakeEmbedder{dim: 4}, nil })
	reg.Register(registry.ModelInfo{
		Key:          "new-model",
		Capabilities: registry.TextEmbedding,
		EstMemoryMB:  100,
	}, func() (any, error) { return fakeEmbedder{dim: 4}, nil })

	if err := d.EnsureWorkers("old-model", registry.TextEmbedding); err != nil {
		t.Fatalf("ensure old: %v", err)
	}

	deadline := time.After(time.Second)
	for {
		_, err := d.TextEmbedding.Embed("old-model", "warm up")
		if err == nil {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("old-model never came ready: %v", err)
		case <-time.After(time.Millisecond):
		}
	}

	// old-model sits idle long enough for eviction ranking to prefer it;
	// it need not actually reach Idle state for this test, since eviction
	// ranks alive workers and old-model is currently the only one.
	if err := d.EnsureWorkers("new-model", registry.TextEmbedding); err != nil {
		t.Fatalf("ensure new after eviction: %v", err)
	}
}

func TestMemoryExhaustedWithNothingToEvictFails(t *testing.T) {
	d, reg := newTestDispatcher(t, 50)
	reg.Register(registry.ModelInfo{
		Key:          "too-big",
		Capabilities: registry.TextEmbedding,
		EstMemoryMB:  100,
	}, func() (any, error) { return fakeEmbedder{dim: 4}, nil })

	err := d.EnsureWorkers("too-big", registry.TextEmbedding)
	if !errors.Is(err, pool.ErrMemoryExhausted) {
		t.Errorf("err = %v, want ErrMemoryExhausted", err)
	}
}
