package edge

import (
	"net/http"
	"sync"
	"time"
)

// RateLimiter enforces a per-tenant/per-agent fixed-window request cap at
// the edge: a map of one-minute windows, each starting at its key's first
// request and reset by the first request after it ends, plus a background
// cleanup goroutine that evicts stale entries. This is deliberately the only rate limiter in
// the tree — the dispatcher and pools stay free of any notion of "requests
// per minute"; it belongs at the ingress alone.
type RateLimiter struct {
	mu      sync.RWMutex
	windows map[string]*window
	cfg     RateLimitConfig
}

// RateLimitConfig holds the limiter's per-key thresholds. Allow caps each
// window at BurstSize; MaxCallsPerMinute only sets BurstSize's default
// (twice its value) when BurstSize is zero.
type RateLimitConfig struct {
	MaxCallsPerMinute int
	BurstSize         int
}

type window struct {
	count       int
	windowStart time.Time
}

// NewRateLimiter creates a limiter with the given defaults and starts its
// background cleanup goroutine.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.MaxCallsPerMinute == 0 {
		cfg.MaxCallsPerMinute = 60
	}
	if cfg.BurstSize == 0 {
		cfg.BurstSize = cfg.MaxCallsPerMinute * 2
	}
	rl := &RateLimiter{windows: make(map[string]*window), cfg: cfg}
	go rl.cleanup()
	return rl
}

// Allow reports whether a request keyed by key (tenant:agent) is within
// the current minute's burst allowance.
func (rl *RateLimiter) Allow(key string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, exists := rl.windows[key]
	if !exists || now.Sub(w.windowStart) > time.Minute {
		rl.windows[key] = &window{count: 1, windowStart: now}
		return true
	}
	w.count++
	return w.count <= rl.cfg.BurstSize
}

// Middleware enforces Allow on every request, keyed by the X-Tenant-ID
// and X-Agent-ID headers.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agentID := r.Header.Get("X-Agent-ID")
		if agentID == "" {
			agentID = "anonymous"
		}
		key := getTenantID(r) + ":" + agentID

		if !rl.Allow(key) {
			w.Header().Set("Retry-After", "60")
			status, body := ToRPCError(errRateLimited)
			writeRPCError(w, nil, status, body)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		rl.mu.Lock()
		now := time.Now()
		for key, w := range rl.windows {
			if now.Sub(w.windowStart) > 2*time.Minute {
				delete(rl.windows, key)
			}
		}
		rl.mu.Unlock()
	}
}
