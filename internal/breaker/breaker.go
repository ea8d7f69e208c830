// Package breaker implements a per-registry-key circuit breaker guarding
// model dispatch from cascading failures. States are Closed, Open, and
// HalfOpen, driven by consecutive success/failure counters and a
// generation counter that invalidates a stale state transition racing
// against a newer one.
package breaker

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// State is the circuit breaker's current disposition.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrCircuitOpen is returned by Allow when the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ErrTooManyProbes is returned when HalfOpen already has its probe budget
// in flight.
var ErrTooManyProbes = errors.New("too many half-open probes in flight")

// Config holds a breaker's thresholds.
type Config struct {
	FailuresToOpen  uint32
	OpenCooldown    time.Duration
	HalfOpenProbes  uint32
	OnStateChange   func(key string, from, to State)
}

// DefaultConfig returns the thresholds a breaker runs with absent explicit
// overrides.
func DefaultConfig() Config {
	return Config{
		FailuresToOpen: 5,
		OpenCooldown:   30 * time.Second,
		HalfOpenProbes: 1,
	}
}

// Counts tracks request outcomes within the current generation.
type Counts struct {
	Requests             uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

func (c *Counts) clear() { *c = Counts{} }

func (c *Counts) onSuccess() {
	c.Requests++
	c.ConsecutiveSuccesses++
	c.ConsecutiveFailures = 0
}

func (c *Counts) onFailure() {
	c.Requests++
	c.ConsecutiveFailures++
	c.ConsecutiveSuccesses = 0
}

// Breaker is a single circuit breaker instance, one per registry key.
//
// state and generation are mirrored into packed (generation in the upper
// 32 bits, state in the lower 32) so CanRequest/Allow can read them with a
// single atomic load in the common Closed case instead of taking mu. Open's
// cooldown deadline is mirrored the same way in expiryNano (0 when not
// Open). mu is only ever taken to perform an actual state transition:
// RecordSuccess, RecordFailure, or the rare Open-past-cooldown/HalfOpen
// paths through Allow.
type Breaker struct {
	cfg Config
	key string

	packed     atomic.Uint64
	expiryNano atomic.Int64

	mu         sync.Mutex
	state      State
	generation uint64
	counts     Counts
	expiry     time.Time
}

// New creates a breaker for key with cfg.
func New(key string, cfg Config) *Breaker {
	b := &Breaker{cfg: cfg, key: key, state: Closed}
	b.packed.Store(packState(Closed, 0))
	return b
}

func packState(state State, generation uint64) uint64 {
	return generation<<32 | uint64(uint32(state))
}

func unpackState(packed uint64) State {
	return State(int32(uint32(packed)))
}

// State returns the current state, applying any pending Open→HalfOpen
// transition first.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, _ := b.currentState(time.Now())
	return state
}

// Counts returns a copy of the current window's counters.
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// CanRequest is the fast path dispatch calls before sending any work: false
// means short-circuit without touching the model at all. It is equivalent
// to Allow() == nil.
func (b *Breaker) CanRequest() bool {
	return b.Allow() == nil
}

// Allow reports whether a request may proceed, returning the reason if not.
// The common case — Closed, by far the most frequent state for a healthy
// key — is a single atomic load and never touches the mutex. Open with an
// unexpired cooldown is also lock-free, since expiryNano is itself atomic.
// Only an Open breaker whose cooldown has elapsed (due for its one-way
// transition to HalfOpen) or an already-HalfOpen breaker (bounded by its
// probe budget) takes the lock, to perform that transition or probe
// admission check exactly once.
func (b *Breaker) Allow() error {
	switch unpackState(b.packed.Load()) {
	case Closed:
		return nil
	case Open:
		expiry := b.expiryNano.Load()
		if expiry == 0 || time.Now().UnixNano() < expiry {
			return ErrCircuitOpen
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	state, _ := b.currentState(now)
	switch {
	case state == Open:
		return ErrCircuitOpen
	case state == HalfOpen && b.counts.Requests >= b.cfg.HalfOpenProbes:
		return ErrTooManyProbes
	}
	return nil
}

// RecordSuccess reports a successful dispatch outcome.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	state, _ := b.currentState(now)
	switch state {
	case Closed:
		b.counts.onSuccess()
	case HalfOpen:
		b.counts.onSuccess()
		if b.counts.ConsecutiveSuccesses >= b.cfg.HalfOpenProbes {
			b.setState(Closed, now)
		}
	}
}

// RecordFailure reports a failed dispatch outcome (timeout, a worker exit
// before reply, or a model error). Failures rejected before they ever
// reached a worker — CircuitOpen, NoWorkers — must not be recorded here.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	state, _ := b.currentState(now)
	switch state {
	case Closed:
		b.counts.onFailure()
		if b.counts.ConsecutiveFailures >= b.cfg.FailuresToOpen {
			b.setState(Open, now)
		}
	case HalfOpen:
		b.setState(Open, now)
	}
}

func (b *Breaker) currentState(now time.Time) (State, uint64) {
	if b.state == Open && !b.expiry.IsZero() && !b.expiry.After(now) {
		b.setState(HalfOpen, now)
	}
	return b.state, b.generation
}

func (b *Breaker) setState(state State, now time.Time) {
	if b.state == state {
		return
	}
	prev := b.state
	b.state = state
	b.generation++
	b.counts.clear()

	switch state {
	case Open:
		b.expiry = now.Add(b.cfg.OpenCooldown)
		b.expiryNano.Store(b.expiry.UnixNano())
	default:
		b.expiry = time.Time{}
		b.expiryNano.Store(0)
	}
	b.packed.Store(packState(state, b.generation))

	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.key, prev, state)
	}
}
