// Package system wires the process together: governor, breaker manager,
// registry, the per-capability dispatcher, the memory store, and the edge
// server, in one explicit Init call that constructs each component and
// passes it into the next.
package system

import (
	"fmt"
	"time"

	"github.com/ocx/modelrun/internal/breaker"
	"github.com/ocx/modelrun/internal/config"
	"github.com/ocx/modelrun/internal/dispatch"
	"github.com/ocx/modelrun/internal/edge"
	"github.com/ocx/modelrun/internal/governor"
	"github.com/ocx/modelrun/internal/memstore"
	"github.com/ocx/modelrun/internal/metrics"
	"github.com/ocx/modelrun/internal/pool"
	"github.com/ocx/modelrun/internal/registry"
)

// System holds every long-lived component the daemon needs, assembled by
// Init and torn down by Shutdown.
type System struct {
	Config     *config.Config
	Governor   *governor.Governor
	Breakers   *breaker.Manager
	Registry   *registry.Registry
	Dispatcher *dispatch.Dispatcher
	Metrics    *metrics.Metrics
	MemStore   memstore.Store
	Edge       *edge.Server
}

// MemStoreFactory builds the memory store adapter named by cfg.Backend.
// Exposed as a seam so callers (and tests) can substitute a fake store
// without dialing a real Redis or Postgres instance.
type MemStoreFactory func(config.MemstoreConfig) (memstore.Store, error)

// Init builds the full dependency graph from cfg, dialing the memory
// store backend named by cfg.Memstore.Backend. Callers register their
// models into the returned System's Registry before starting the edge
// server: construction and model registration are two distinct phases.
func Init(cfg *config.Config) (*System, error) {
	return InitWithMemStore(cfg, newMemStore)
}

// InitWithMemStore is Init with the memory store construction supplied by
// the caller, letting tests and alternate entrypoints skip the network
// dial that NewRedisStore/NewPostgresStore otherwise perform.
func InitWithMemStore(cfg *config.Config, storeFactory MemStoreFactory) (*System, error) {
	gov := governor.New(cfg.MemoryCeilingMB)

	brkCfg := breaker.Config{
		FailuresToOpen:  cfg.Circuit.FailuresToOpen,
		OpenCooldownSec: cfg.Circuit.OpenCooldownSec,
		HalfOpenProbes:  cfg.Circuit.HalfOpenProbes,
	}
	brk := breaker.NewManager(brkCfg)

	reg := registry.New()

	poolCfg := pool.Config{
		OpChannelCapacity: cfg.OpChannelCapacity,
		RequestTimeout:    secondsToDuration(cfg.RequestTimeoutSecs),
		IdleThreshold:     secondsToDuration(cfg.IdleTTLSecs),
		IdleCheckPeriod:   pool.DefaultConfig().IdleCheckPeriod,
		HealthPingTimeout: pool.DefaultConfig().HealthPingTimeout,
	}

	disp := dispatch.New(reg, gov, brk, poolCfg)
	m := metrics.New()

	store, err := storeFactory(cfg.Memstore)
	if err != nil {
		return nil, fmt.Errorf("system: memstore init: %w", err)
	}

	rl := edge.NewRateLimiter(edge.RateLimitConfig{})
	edgeServer := edge.NewServer(disp, rl, cfg.Server.CORSAllowOrigins)

	return &System{
		Config:     cfg,
		Governor:   gov,
		Breakers:   brk,
		Registry:   reg,
		Dispatcher: disp,
		Metrics:    m,
		MemStore:   store,
		Edge:       edgeServer,
	}, nil
}

func newMemStore(cfg config.MemstoreConfig) (memstore.Store, error) {
	switch cfg.Backend {
	case "postgres":
		return memstore.NewPostgresStore(cfg.PostgresDSN)
	case "redis", "":
		return memstore.NewRedisStore(cfg.RedisAddr, cfg.RedisDB, "modelrun:mem", 0)
	default:
		return nil, fmt.Errorf("system: unknown memstore backend %q", cfg.Backend)
	}
}

func secondsToDuration(secs int64) (d time.Duration) {
	return time.Duration(secs) * time.Second
}

// Shutdown drains the dispatcher's pools within deadline and releases
// adapter connections.
func (s *System) Shutdown() {
	s.Dispatcher.Shutdown(secondsToDuration(s.Config.ShutdownDeadlineSecs))
	switch store := s.MemStore.(type) {
	case *memstore.RedisStore:
		store.Close()
	case *memstore.PostgresStore:
		store.Close()
	}
}
