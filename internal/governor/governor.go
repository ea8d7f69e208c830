// Package governor tracks bytes in use across all pools against a
// configured ceiling and issues drop-on-release allocation guards. It never
// blocks: callers that can't reserve must trigger eviction and retry, or
// fail fast.
package governor

import "sync/atomic"

// Governor is a process-wide memory accountant.
type Governor struct {
	ceilingMB int64
	inUseMB   atomic.Int64
}

// New creates a Governor with the given ceiling in megabytes.
func New(ceilingMB int64) *Governor {
	return &Governor{ceilingMB: ceilingMB}
}

// CeilingMB returns the configured ceiling.
func (g *Governor) CeilingMB() int64 { return g.ceilingMB }

// InUseMB returns the current reservation total.
func (g *Governor) InUseMB() int64 { return g.inUseMB.Load() }

// Guard is an RAII-style token: Release returns the reserved bytes to the
// governor exactly once, safe to call from a deferred panic-recovery path
// or multiple times.
type Guard struct {
	mb       int64
	g        *Governor
	released atomic.Bool
}

// Release returns the guard's reservation to the governor. Idempotent.
func (guard *Guard) Release() {
	if guard == nil || guard.g == nil {
		return
	}
	if guard.released.CompareAndSwap(false, true) {
		guard.g.inUseMB.Add(-guard.mb)
	}
}

// ReservedMB reports the guard's reservation size.
func (guard *Guard) ReservedMB() int64 { return guard.mb }

// TryReserve attempts to reserve mb megabytes. On success it returns a
// Guard whose Release call returns the bytes; on failure it returns
// (nil, false) and reserves nothing. mb == 0 always succeeds and returns a
// no-op guard, to simplify bookkeeping at call sites that don't know a
// model's footprint yet.
func (g *Governor) TryReserve(mb int64) (*Guard, bool) {
	if mb == 0 {
		return &Guard{mb: 0, g: g}, true
	}
	for {
		cur := g.inUseMB.Load()
		if cur+mb > g.ceilingMB {
			return nil, false
		}
		if g.inUseMB.CompareAndSwap(cur, cur+mb) {
			return &Guard{mb: mb, g: g}, true
		}
	}
}

// Stats is a point-in-time snapshot for the health/metrics surface.
type Stats struct {
	CeilingMB int64
	InUseMB   int64
}

// Snapshot returns the current governor stats.
func (g *Governor) Snapshot() Stats {
	return Stats{CeilingMB: g.ceilingMB, InUseMB: g.inUseMB.Load()}
}
