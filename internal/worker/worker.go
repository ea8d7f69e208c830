// Package worker implements a single model-owning goroutine and the
// lifecycle state machine that surrounds it: a channel-select loop over
// incoming operations, health ping/pong, and idle ticking, with spawn and
// shutdown bookkeeping kept on the externally-visible Handle rather than
// inside the goroutine itself.
package worker

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ocx/modelrun/internal/governor"
)

// Op is one unit of work a worker executes against its model instance. Each
// capability package defines its own operation variants (a tagged union,
// since Go has no enum type) that implement Op by type-asserting model to
// the capability's own interface and delivering the outcome on the
// operation's own Envelope — see internal/capability.
type Op interface {
	Execute(ctx context.Context, model any)
}

// HealthPing requests a liveness/depth report from the worker loop.
type HealthPing struct{}

// HealthPong is the worker's reply to a HealthPing.
type HealthPong struct {
	WorkerID  uint64
	UnixTime  int64
	DepthHint int
}

// Config holds the tunables of a single worker's run loop.
type Config struct {
	OpChannelCapacity int
	IdleThreshold     time.Duration
	IdleCheckPeriod   time.Duration
}

// Handle is a worker's externally-visible control surface: its atomic state,
// its inbound operation channel, and the means to ping or shut it down. The
// model instance itself never escapes the run loop's goroutine.
type Handle struct {
	ID          uint64
	RegistryKey string
	EstMemoryMB int64

	state        atomic.Int32
	pending      atomic.Int64
	lastUsedUnix atomic.Int64

	ops          chan Op
	shutdown     chan struct{}
	shuttingDown atomic.Bool
	healthPing   chan HealthPing
	healthPong   chan HealthPong
	done         chan struct{}
}

// Spawn starts a worker's run loop in a new goroutine and returns its handle
// immediately, in Spawning state. factory is invoked on the worker's own
// goroutine — model construction never blocks the caller. guard is released
// exactly once, whenever the loop exits, regardless of how it exits.
func Spawn(id uint64, registryKey string, estMemoryMB int64, guard *governor.Guard, factory func() (any, error), cfg Config) *Handle {
	if cfg.OpChannelCapacity <= 0 {
		cfg.OpChannelCapacity = 32
	}
	if cfg.IdleCheckPeriod <= 0 {
		cfg.IdleCheckPeriod = 5 * time.Second
	}

	h := &Handle{
		ID:          id,
		RegistryKey: registryKey,
		EstMemoryMB: estMemoryMB,
		ops:         make(chan Op, cfg.OpChannelCapacity),
		shutdown:    make(chan struct{}),
		healthPing:  make(chan HealthPing),
		healthPong:  make(chan HealthPong, 1),
		done:        make(chan struct{}),
	}
	h.state.Store(int32(Spawning))

	go h.run(factory, guard, cfg)
	return h
}

func (h *Handle) run(factory func() (any, error), guard *governor.Guard, cfg Config) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("worker panicked, evicting", "worker_id", h.ID, "registry_key", h.RegistryKey, "recover", r)
		}
		guard.Release()
		h.state.Store(int32(Dead))
		close(h.done)
	}()

	h.state.Store(int32(Loading))
	model, err := factory()
	if err != nil {
		slog.Error("worker model load failed", "worker_id", h.ID, "registry_key", h.RegistryKey, "error", err)
		h.state.Store(int32(Failed))
		return
	}

	h.state.Store(int32(Ready))
	h.touch()

	idleTicker := time.NewTicker(cfg.IdleCheckPeriod)
	defer idleTicker.Stop()

	for {
		select {
		case op := <-h.ops:
			h.state.Store(int32(Processing))
			op.Execute(context.Background(), model)
			h.state.Store(int32(Ready))
			h.touch()

		case <-h.healthPing:
			pong := HealthPong{WorkerID: h.ID, UnixTime: time.Now().Unix(), DepthHint: len(h.ops)}
			select {
			case h.healthPong <- pong:
			default:
			}

		case <-idleTicker.C:
			if cfg.IdleThreshold > 0 && State(h.state.Load()) == Ready && time.Since(h.LastUsed()) > cfg.IdleThreshold {
				h.state.CompareAndSwap(int32(Ready), int32(Idle))
			}

		case <-h.shutdown:
			h.state.Store(int32(Evicting))
			return
		}
	}
}

// State returns the worker's current lifecycle state.
func (h *Handle) State() State { return State(h.state.Load()) }

// Pending reports how many operations are currently in flight against this
// worker: sent but not yet replied, timed out, or dropped. The dispatcher
// owns this count (IncPending/DecPending), not the run loop, so it reflects
// backlog the instant a request is handed off rather than only once
// Execute actually starts.
func (h *Handle) Pending() int64 { return h.pending.Load() }

// IncPending marks one more operation as outstanding against this worker.
// Callers increment right before TrySend and must decrement exactly once,
// however the operation resolves (failed send, reply, timeout, or drop).
func (h *Handle) IncPending() { h.pending.Add(1) }

// DecPending reverses a prior IncPending.
func (h *Handle) DecPending() { h.pending.Add(-1) }

// QueueDepth is a non-authoritative hint about how many operations are
// already buffered in this worker's channel.
func (h *Handle) QueueDepth() int { return len(h.ops) }

// LastUsed returns the time this worker last finished an operation.
func (h *Handle) LastUsed() time.Time {
	return time.Unix(h.lastUsedUnix.Load(), 0)
}

func (h *Handle) touch() { h.lastUsedUnix.Store(time.Now().Unix()) }

// TrySend attempts a non-blocking send of op onto this worker's operation
// channel. It returns false if the channel is full (backpressure) rather
// than block the caller.
func (h *Handle) TrySend(op Op) bool {
	select {
	case h.ops <- op:
		return true
	default:
		return false
	}
}

// Ping asks the worker for a liveness/depth report, waiting up to timeout.
func (h *Handle) Ping(ctx context.Context, timeout time.Duration) (HealthPong, bool) {
	select {
	case h.healthPing <- HealthPing{}:
	case <-time.After(timeout):
		return HealthPong{}, false
	case <-ctx.Done():
		return HealthPong{}, false
	}
	select {
	case pong := <-h.healthPong:
		return pong, true
	case <-time.After(timeout):
		return HealthPong{}, false
	case <-ctx.Done():
		return HealthPong{}, false
	}
}

// Shutdown signals the worker to stop accepting work and exit. Non-blocking
// and idempotent: a worker already shutting down or dead ignores repeats,
// safe to call concurrently from multiple goroutines.
func (h *Handle) Shutdown() {
	if h.shuttingDown.CompareAndSwap(false, true) {
		close(h.shutdown)
	}
}

// Done is closed once the worker's run loop has exited and its model and
// memory guard have been released.
func (h *Handle) Done() <-chan struct{} { return h.done }
