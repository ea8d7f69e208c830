// Package dispatch is the capability dispatcher façade: the one place that
// knows about all five capability pools, the model registry, and the
// memory governor together, constructed once at startup.
package dispatch

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ocx/modelrun/internal/breaker"
	"github.com/ocx/modelrun/internal/capability"
	"github.com/ocx/modelrun/internal/governor"
	"github.com/ocx/modelrun/internal/pool"
	"github.com/ocx/modelrun/internal/registry"
	"github.com/ocx/modelrun/internal/worker"
)

// ErrUnknownModel is returned when a registry key isn't registered at all.
var ErrUnknownModel = errors.New("unknown registry key")

// ErrCapabilityMismatch is returned when a registry key is known but
// doesn't advertise the capability the caller asked for.
var ErrCapabilityMismatch = errors.New("model does not support this capability")

type poolEntry struct {
	name string
	pool *pool.Pool
}

// Dispatcher owns every capability pool and ensures a registry key has
// workers before routing a request to it.
type Dispatcher struct {
	registry *registry.Registry
	gov      *governor.Governor

	TextEmbedding  *capability.TextEmbeddingPool
	ImageEmbedding *capability.ImageEmbeddingPool
	Vision         *capability.VisionPool
	TextToImage    *capability.TextToImagePool
	TextGeneration *capability.TextGenerationPool

	allPools []poolEntry

	ensureLocks sync.Map // string -> *sync.Mutex, one per registry key
}

// New wires up a Dispatcher: one pool.Pool per capability, all sharing the
// same governor and breaker manager.
func New(reg *registry.Registry, gov *governor.Governor, brk *breaker.Manager, cfg pool.Config) *Dispatcher {
	textEmbeddingPool := pool.New("text_embedding", cfg, gov, brk)
	imageEmbeddingPool := pool.New("image_embedding", cfg, gov, brk)
	visionPool := pool.New("vision", cfg, gov, brk)
	textToImagePool := pool.New("text_to_image", cfg, gov, brk)
	textGenerationPool := pool.New("text_generation", cfg, gov, brk)

	return &Dispatcher{
		registry:       reg,
		gov:            gov,
		TextEmbedding:  capability.NewTextEmbeddingPool(textEmbeddingPool),
		ImageEmbedding: capability.NewImageEmbeddingPool(imageEmbeddingPool),
		Vision:         capability.NewVisionPool(visionPool),
		TextToImage:    capability.NewTextToImagePool(textToImagePool),
		TextGeneration: capability.NewTextGenerationPool(textGenerationPool),
		allPools: []poolEntry{
			{"text_embedding", textEmbeddingPool},
			{"image_embedding", imageEmbeddingPool},
			{"vision", visionPool},
			{"text_to_image", textToImagePool},
			{"text_generation", textGenerationPool},
		},
	}
}

func (d *Dispatcher) poolFor(cap registry.Capability) *pool.Pool {
	switch cap {
	case registry.TextEmbedding:
		return d.TextEmbedding.Pool
	case registry.ImageEmbedding:
		return d.ImageEmbedding.Pool
	case registry.Vision:
		return d.Vision.Pool
	case registry.TextToImage:
		return d.TextToImage.Pool
	case registry.TextGeneration:
		return d.TextGeneration.Pool
	default:
		return nil
	}
}

func (d *Dispatcher) keyMutex(key string) *sync.Mutex {
	v, _ := d.ensureLocks.LoadOrStore(key, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// EnsureWorkers spawns workers for key under the pool matching required,
// looking up the model's factory and memory footprint from the registry.
// It is the single entry point every capability-specific HTTP/RPC handler
// calls before routing a request, guarded by a per-key mutex so concurrent
// first-requests for the same model never race each other into spawning
// twice — spawning itself is separately idempotent at the pool level, this
// mutex just avoids two goroutines both paying the reservation/eviction
// cost for the same key at once.
func (d *Dispatcher) EnsureWorkers(key registry.Key, required registry.Capability) error {
	info, factory, ok := d.registry.Lookup(key)
	if !ok {
		return ErrUnknownModel
	}
	if !info.Capabilities.Has(required) {
		return ErrCapabilityMismatch
	}

	p := d.poolFor(required)
	if p == nil {
		return ErrCapabilityMismatch
	}

	mu := d.keyMutex(string(key))
	mu.Lock()
	defer mu.Unlock()

	_, err := p.SpawnWorker(string(key), info.EstMemoryMB, factory)
	if err == nil || !errors.Is(err, pool.ErrMemoryExhausted) {
		return err
	}

	if !d.evictForSpace(info.EstMemoryMB) {
		return err
	}
	_, err = p.SpawnWorker(string(key), info.EstMemoryMB, factory)
	return err
}

type rankedWorker struct {
	handle *worker.Handle
	pool   *pool.Pool
}

// evictForSpace ranks every alive worker across every capability by
// (Idle first, then oldest last-used) and shuts workers down one at a time
// until their estimated memory would cover neededMB, then waits up to 2s
// for all of them to exit. It reports false if the candidates cannot cover
// neededMB or do not exit in time; EnsureWorkers then retries its
// reservation exactly once after a true result — this is not a scheduler,
// just enough slack to let a cold model displace a long-idle one.
func (d *Dispatcher) evictForSpace(neededMB int64) bool {
	var candidates []rankedWorker
	for _, pe := range d.allPools {
		for _, h := range pe.pool.AllWorkers() {
			if h.State().IsAlive() {
				candidates = append(candidates, rankedWorker{handle: h, pool: pe.pool})
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i].handle, candidates[j].handle
		aIdle := a.State() == worker.Idle
		bIdle := b.State() == worker.Idle
		if aIdle != bIdle {
			return aIdle
		}
		return a.LastUsed().Before(b.LastUsed())
	})

	var freed int64
	var evicted []*worker.Handle
	for _, c := range candidates {
		if freed >= neededMB {
			break
		}
		c.pool.EvictWorker(c.handle)
		evicted = append(evicted, c.handle)
		freed += c.handle.EstMemoryMB
	}
	if freed < neededMB {
		return false
	}

	deadline := time.After(2 * time.Second)
	for _, h := range evicted {
		select {
		case <-h.Done():
		case <-deadline:
			return false
		}
	}
	return true
}

// Shutdown stops every capability pool, waiting up to deadline for each.
func (d *Dispatcher) Shutdown(deadline time.Duration) {
	var wg sync.WaitGroup
	for _, pe := range d.allPools {
		wg.Add(1)
		go func(p *pool.Pool) {
			defer wg.Done()
			p.Shutdown(deadline)
		}(pe.pool)
	}
	wg.Wait()
}

// Snapshot aggregates per-capability pool stats for the health surface.
func (d *Dispatcher) Snapshot() map[string][]pool.Stats {
	out := make(map[string][]pool.Stats, len(d.allPools))
	for _, pe := range d.allPools {
		out[pe.name] = pe.pool.Snapshot()
	}
	return out
}
