// Command loadtest drives concurrent capability dispatches against an
// in-process dispatcher and reports throughput/latency percentiles: a
// worker pool pulling request IDs off a buffered channel, atomic counters,
// a ticking progress reporter, and a bubble-sort percentile calculation
// left unoptimized since N stays small.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ocx/modelrun/internal/breaker"
	"github.com/ocx/modelrun/internal/capability"
	"github.com/ocx/modelrun/internal/dispatch"
	"github.com/ocx/modelrun/internal/governor"
	"github.com/ocx/modelrun/internal/pool"
	"github.com/ocx/modelrun/internal/registry"
)

// runConfig holds load test parameters.
type runConfig struct {
	NumRequests    int
	Concurrency    int
	ReportInterval time.Duration
	RegistryKey    string
}

// runStats tracks test metrics.
type runStats struct {
	TotalRequests uint64
	Successes     uint64
	Failures      uint64
	TotalDuration time.Duration
	AvgLatency    time.Duration
	MaxLatency    time.Duration
	MinLatency    time.Duration
	P95Latency    time.Duration
	P99Latency    time.Duration
	Throughput    float64
}

func main() {
	numReq := flag.Int("requests", 1000, "number of embedding requests to simulate")
	concurrency := flag.Int("concurrency", 50, "number of concurrent callers")
	reportInterval := flag.Duration("report", 5*time.Second, "stats reporting interval")
	registryKey := flag.String("key", "loadtest-embedder", "registry key to dispatch against")
	flag.Parse()

	cfg := runConfig{
		NumRequests:    *numReq,
		Concurrency:    *concurrency,
		ReportInterval: *reportInterval,
		RegistryKey:    *registryKey,
	}

	slog.Info("loadtest: starting", "requests", cfg.NumRequests, "concurrency", cfg.Concurrency)
	stats := runLoadTest(cfg)
	printResults(stats)
}

func runLoadTest(cfg runConfig) *runStats {
	reg := registry.New()
	reg.Register(registry.ModelInfo{
		Key:          registry.Key(cfg.RegistryKey),
		Provider:     "loadtest",
		Name:         "synthetic-embedder",
		Capabilities: registry.TextEmbedding,
		EstMemoryMB:  64,
		Defaults:     registry.Defaults{EmbeddingDim: 32},
	}, func() (any, error) { return syntheticEmbedder{dim: 32}, nil })

	gov := governor.New(4096)
	brk := breaker.NewManager(breaker.DefaultConfig())
	disp := dispatch.New(reg, gov, brk, pool.DefaultConfig())

	if err := disp.EnsureWorkers(registry.Key(cfg.RegistryKey), registry.TextEmbedding); err != nil {
		slog.Error("loadtest: failed to spin up workers", "error", err)
		return &runStats{}
	}

	stats := &runStats{MinLatency: time.Hour}
	var latencies []time.Duration
	var latenciesMu sync.Mutex

	reqChan := make(chan int, cfg.NumRequests)
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go reportStats(ctx, stats, cfg.ReportInterval)

	start := time.Now()
	for i := 0; i < cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for reqID := range reqChan {
				dispatchOnce(disp, cfg.RegistryKey, reqID, stats, &latencies, &latenciesMu)
			}
		}()
	}

	for i := 0; i < cfg.NumRequests; i++ {
		reqChan <- i
	}
	close(reqChan)
	wg.Wait()

	stats.TotalDuration = time.Since(start)
	stats.Throughput = float64(stats.TotalRequests) / stats.TotalDuration.Seconds()

	latenciesMu.Lock()
	if len(latencies) > 0 {
		stats.AvgLatency = average(latencies)
		stats.P95Latency = percentile(latencies, 95)
		stats.P99Latency = percentile(latencies, 99)
	}
	latenciesMu.Unlock()

	return stats
}

type syntheticEmbedder struct{ dim int }

func (s syntheticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out := make([]float32, s.dim)
	for i := range out {
		out[i] = float32(len(text)%7) / 7.0
	}
	return out, nil
}

func (s syntheticEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, _ := s.Embed(ctx, t)
		out[i] = v
	}
	return out, nil
}

var _ capability.TextEmbeddingModel = syntheticEmbedder{}

func dispatchOnce(
	disp *dispatch.Dispatcher,
	registryKey string,
	reqID int,
	stats *runStats,
	latencies *[]time.Duration,
	latenciesMu *sync.Mutex,
) {
	text := fmt.Sprintf("synthetic request payload %d", reqID)

	start := time.Now()
	_, err := disp.TextEmbedding.Embed(registry.Key(registryKey), text)
	latency := time.Since(start)

	atomic.AddUint64(&stats.TotalRequests, 1)
	if err != nil {
		atomic.AddUint64(&stats.Failures, 1)
	} else {
		atomic.AddUint64(&stats.Successes, 1)
	}

	latenciesMu.Lock()
	*latencies = append(*latencies, latency)
	if latency > stats.MaxLatency {
		stats.MaxLatency = latency
	}
	if latency < stats.MinLatency {
		stats.MinLatency = latency
	}
	latenciesMu.Unlock()
}

func reportStats(ctx context.Context, stats *runStats, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			slog.Info("loadtest: progress",
				"total", atomic.LoadUint64(&stats.TotalRequests),
				"success", atomic.LoadUint64(&stats.Successes),
				"failed", atomic.LoadUint64(&stats.Failures))
		case <-ctx.Done():
			return
		}
	}
}

func printResults(stats *runStats) {
	separator := "================================================================================"
	fmt.Println("\n" + separator)
	fmt.Println("LOAD TEST RESULTS")
	fmt.Println(separator)
	fmt.Printf("Total Requests:   %d\n", stats.TotalRequests)
	if stats.TotalRequests > 0 {
		fmt.Printf("Successes:        %d (%.2f%%)\n", stats.Successes, float64(stats.Successes)/float64(stats.TotalRequests)*100)
		fmt.Printf("Failures:         %d (%.2f%%)\n", stats.Failures, float64(stats.Failures)/float64(stats.TotalRequests)*100)
	}
	fmt.Printf("Total Duration:   %v\n", stats.TotalDuration)
	fmt.Printf("Throughput:       %.2f req/sec\n", stats.Throughput)
	fmt.Printf("Latency min/avg/p95/p99/max: %v / %v / %v / %v / %v\n",
		stats.MinLatency, stats.AvgLatency, stats.P95Latency, stats.P99Latency, stats.MaxLatency)
	fmt.Println(separator)
}

func average(latencies []time.Duration) time.Duration {
	if len(latencies) == 0 {
		return 0
	}
	var total time.Duration
	for _, l := range latencies {
		total += l
	}
	return total / time.Duration(len(latencies))
}

func percentile(latencies []time.Duration, p int) time.Duration {
	if len(latencies) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(latencies))
	copy(sorted, latencies)
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[i] > sorted[j] {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
	}
	idx := int(float64(len(sorted)) * float64(p) / 100.0)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
