// Package pool holds one goroutine-backed worker.Handle per loaded model
// and routes dispatch calls to them: a mutex-protected map keyed by
// registry key, a background maintenance loop that evicts idle workers,
// and a Stats snapshot for the health/metrics surface. One Pool instance
// is shared by every model registered under a given capability.
package pool

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ocx/modelrun/internal/breaker"
	"github.com/ocx/modelrun/internal/governor"
	"github.com/ocx/modelrun/internal/worker"
)

// Config holds a pool's tunables.
type Config struct {
	OpChannelCapacity int
	RequestTimeout    time.Duration
	IdleThreshold     time.Duration
	IdleCheckPeriod   time.Duration
	HealthPingTimeout time.Duration
}

// DefaultConfig returns the tunables a pool runs with absent explicit
// overrides from the daemon's config file.
func DefaultConfig() Config {
	return Config{
		OpChannelCapacity: 32,
		RequestTimeout:    30 * time.Second,
		IdleThreshold:     5 * time.Minute,
		IdleCheckPeriod:   30 * time.Second,
		HealthPingTimeout: 2 * time.Second,
	}
}

// Pool holds every live worker for one capability, keyed by registry key.
// A process runs one Pool per capability (text embedding, vision, ...); the
// type itself carries no capability-specific logic — that lives in
// internal/capability's thin typed wrappers built on Dispatch.
type Pool struct {
	Name string
	cfg  Config
	gov  *governor.Governor
	brk  *breaker.Manager

	mu      sync.RWMutex
	workers map[string][]*worker.Handle
	spawnMu sync.Map // string -> *sync.Mutex, one per registry key

	nextID       uint64
	nextIDMu     sync.Mutex
	shuttingDown bool

	stopMaintenance chan struct{}
}

// New creates a Pool for one capability and starts its idle-eviction
// maintenance loop.
func New(name string, cfg Config, gov *governor.Governor, brk *breaker.Manager) *Pool {
	p := &Pool{
		Name:            name,
		cfg:             cfg,
		gov:             gov,
		brk:             brk,
		workers:         make(map[string][]*worker.Handle),
		stopMaintenance: make(chan struct{}),
	}
	go p.maintain()
	return p
}

func (p *Pool) keyMutex(key string) *sync.Mutex {
	v, _ := p.spawnMu.LoadOrStore(key, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (p *Pool) allocID() uint64 {
	p.nextIDMu.Lock()
	defer p.nextIDMu.Unlock()
	p.nextID++
	return p.nextID
}

// aliveWorkers returns the alive subset of workers currently registered
// under key (a snapshot; does not mutate the pool's map).
func (p *Pool) aliveWorkers(key string) []*worker.Handle {
	p.mu.RLock()
	defer p.mu.RUnlock()
	all := p.workers[key]
	out := make([]*worker.Handle, 0, len(all))
	for _, h := range all {
		if h.State().IsAlive() {
			out = append(out, h)
		}
	}
	return out
}

// SpawnWorker spawns a worker for key if none is currently starting
// (Spawning, Loading) or alive for it. Idempotent: a concurrent or repeated
// call against an already-populated key is a no-op and returns one of the
// existing workers, guarded by a
// per-key mutex so two goroutines racing to spawn the same key never both
// succeed.
func (p *Pool) SpawnWorker(key string, estMemoryMB int64, factory func() (any, error)) (*worker.Handle, error) {
	p.mu.RLock()
	down := p.shuttingDown
	p.mu.RUnlock()
	if down {
		return nil, ErrShuttingDown
	}

	mu := p.keyMutex(key)
	mu.Lock()
	defer mu.Unlock()

	p.mu.RLock()
	for _, h := range p.workers[key] {
		switch h.State() {
		case worker.Spawning, worker.Loading, worker.Ready, worker.Idle, worker.Processing:
			p.mu.RUnlock()
			return h, nil
		}
	}
	p.mu.RUnlock()

	guard, ok := p.gov.TryReserve(estMemoryMB)
	if !ok {
		return nil, ErrMemoryExhausted
	}

	id := p.allocID()
	h := worker.Spawn(id, key, estMemoryMB, guard, factory, worker.Config{
		OpChannelCapacity: p.cfg.OpChannelCapacity,
		IdleThreshold:     p.cfg.IdleThreshold,
		IdleCheckPeriod:   p.cfg.IdleCheckPeriod,
	})

	p.mu.Lock()
	p.workers[key] = append(p.workers[key], h)
	p.mu.Unlock()

	slog.Info("worker spawned", "pool", p.Name, "registry_key", key, "worker_id", id, "est_memory_mb", estMemoryMB)
	return h, nil
}

// Dispatch is the generic send/await-reply helper every capability's typed
// methods are built on. wrap turns the caller's envelope into a worker.Op
// that knows how to call the model and deliver a result.
func Dispatch[Req any, Resp any](p *Pool, key string, req Req, wrap func(*worker.Envelope[Req, Resp]) worker.Op) (Resp, error) {
	var zero Resp

	p.mu.RLock()
	down := p.shuttingDown
	p.mu.RUnlock()
	if down {
		return zero, ErrShuttingDown
	}

	brk := p.brk.Get(key)
	if err := brk.Allow(); err != nil {
		return zero, err
	}

	workers := p.aliveWorkers(key)
	if len(workers) == 0 {
		return zero, ErrNoWorkers
	}

	env := worker.NewEnvelope[Req, Resp](req)
	op := wrap(env)

	candidate := selectWorker(workers)
	if candidate != nil {
		candidate.IncPending()
		defer candidate.DecPending()
	}
	if candidate == nil || !candidate.TrySend(op) {
		brk.RecordFailure()
		return zero, ErrSendBackpressure
	}

	timeout := p.cfg.RequestTimeout
	var result worker.Result[Resp]
	select {
	case result = <-env.Reply:
	case <-candidate.Done():
		select {
		case result = <-env.Reply:
		default:
			brk.RecordFailure()
			return zero, ErrRecvError
		}
	case <-time.After(timeout):
		brk.RecordFailure()
		return zero, ErrTimeout
	}
	if result.Err != nil {
		brk.RecordFailure()
		return zero, NewModelError(key, result.Err)
	}
	brk.RecordSuccess()
	return result.Value, nil
}

// AllWorkers returns a snapshot of every worker (alive or not) currently
// tracked by this pool, for cross-capability eviction ranking.
func (p *Pool) AllWorkers() []*worker.Handle {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []*worker.Handle
	for _, ws := range p.workers {
		out = append(out, ws...)
	}
	return out
}

// EvictWorker shuts a specific worker down, used by cross-capability
// emergency eviction when the governor can't satisfy a reservation.
func (p *Pool) EvictWorker(h *worker.Handle) { h.Shutdown() }

// maintain evicts workers that have sat Idle past the idle threshold and
// periodically prunes dead entries from the map.
func (p *Pool) maintain() {
	period := p.cfg.IdleCheckPeriod
	if period <= 0 {
		period = 30 * time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.pruneAndEvictIdle()
		case <-p.stopMaintenance:
			return
		}
	}
}

func (p *Pool) pruneAndEvictIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, ws := range p.workers {
		kept := ws[:0]
		for _, h := range ws {
			switch h.State() {
			case worker.Dead:
				continue
			case worker.Idle:
				h.Shutdown()
				kept = append(kept, h)
			default:
				kept = append(kept, h)
			}
		}
		if len(kept) == 0 {
			delete(p.workers, key)
		} else {
			p.workers[key] = kept
		}
	}
}

// Shutdown stops accepting new work, signals every worker to drain, and
// waits up to deadline for them to exit.
func (p *Pool) Shutdown(deadline time.Duration) {
	p.mu.Lock()
	p.shuttingDown = true
	var all []*worker.Handle
	for _, ws := range p.workers {
		all = append(all, ws...)
	}
	p.mu.Unlock()

	close(p.stopMaintenance)

	for _, h := range all {
		h.Shutdown()
	}
	deadlineCh := time.After(deadline)
	for _, h := range all {
		select {
		case <-h.Done():
		case <-deadlineCh:
			slog.Warn("pool shutdown deadline exceeded", "pool", p.Name)
			return
		}
	}
}

// Stats is a point-in-time snapshot for the health/metrics surface.
type Stats struct {
	Key         string
	Alive       int
	Idle        int
	Processing  int
	QueueDepths []int
}

// Snapshot reports per-key worker counts by state.
func (p *Pool) Snapshot() []Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Stats, 0, len(p.workers))
	for key, ws := range p.workers {
		s := Stats{Key: key}
		for _, h := range ws {
			switch state := h.State(); state {
			case worker.Idle:
				s.Idle++
				s.Alive++
			case worker.Processing:
				s.Processing++
				s.Alive++
			case worker.Ready:
				s.Alive++
			}
			s.QueueDepths = append(s.QueueDepths, h.QueueDepth())
		}
		out = append(out, s)
	}
	return out
}

func (p *Pool) String() string {
	return fmt.Sprintf("pool(%s)", p.Name)
}
