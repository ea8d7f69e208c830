package breaker

import "sync"

// Manager owns one Breaker per registry key, created lazily on first use
// and kept for the pool's lifetime.
type Manager struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	defaults Config
}

// NewManager creates a Manager; cfg is used for any key without an
// explicit override passed to GetOrCreate.
func NewManager(cfg Config) *Manager {
	return &Manager{breakers: make(map[string]*Breaker), defaults: cfg}
}

// Get returns the breaker for key, creating it with the manager's default
// config if it doesn't exist yet.
func (m *Manager) Get(key string) *Breaker {
	return m.GetOrCreate(key, m.defaults)
}

// GetOrCreate returns the existing breaker for key, or creates one with cfg.
func (m *Manager) GetOrCreate(key string, cfg Config) *Breaker {
	m.mu.RLock()
	b, ok := m.breakers[key]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok = m.breakers[key]; ok {
		return b
	}
	b = New(key, cfg)
	m.breakers[key] = b
	return b
}

// Remove drops the breaker for key, e.g. after the model is deregistered.
func (m *Manager) Remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.breakers, key)
}

// Snapshot reports state for every breaker currently tracked, for the
// health/metrics surface.
func (m *Manager) Snapshot() map[string]State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]State, len(m.breakers))
	for k, b := range m.breakers {
		out[k] = b.State()
	}
	return out
}
