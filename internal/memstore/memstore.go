// Package memstore is the external persistent memory collaborator: a
// graph + vector + quantum-signature store. It is never imported by
// internal/pool, internal/worker, internal/dispatch or internal/edge —
// internal/system constructs the configured Store and holds it on System;
// no request path writes to it. This matches the narrow-interface-injected-
// adapter shape of internal/fabric/redis_store.go and
// internal/infra/redis_adapter.go.
package memstore

import (
	"context"
	"time"
)

// Node is a single unit of persisted memory: a piece of content plus its
// embedding, free-form metadata, and bookkeeping timestamps.
type Node struct {
	ID        string
	Type      string
	Content   string
	Vector    []float32
	Metadata  map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// QuantumSignature is the coherence fingerprint recorded alongside a node:
// a fixed-size fingerprint, the set of nodes it's entangled with, and a
// measured decoherence rate.
type QuantumSignature struct {
	MemoryID            string
	CoherenceFingerprint []byte
	EntanglementBonds    []string
	DecoherenceRate      float64
}

// EntanglementType names the kind of relationship between two memory
// nodes.
type EntanglementType string

const (
	EntanglementSemantic EntanglementType = "semantic"
	EntanglementTemporal EntanglementType = "temporal"
	EntanglementCausal   EntanglementType = "causal"
)

// EntanglementEdge links two memory nodes with a typed, weighted bond.
type EntanglementEdge struct {
	FromID    string
	ToID      string
	Type      EntanglementType
	Strength  float64
	CreatedAt time.Time
}

// Match is one ranked hit from a vector or content search.
type Match struct {
	Node  Node
	Score float64
}

// Result carries one streamed item or a terminal error/completion signal,
// the same shape worker.StreamResult uses for capability streaming — the
// two exist independently because this package must not import
// internal/worker (memstore is an external collaborator, not part of the
// worker pool's own concurrency machinery).
type Result[T any] struct {
	Value T
	Err   error
	Done  bool
}

// Store is the narrow interface the core depends on. Every method that
// can return more than one item streams its results over a channel;
// single-item lookups stream exactly one Result before closing, so
// callers never need a separate code path for the single-item case.
type Store interface {
	Create(ctx context.Context, n Node) <-chan Result[Node]
	Get(ctx context.Context, id string) <-chan Result[Node]
	Update(ctx context.Context, n Node) <-chan Result[Node]
	Delete(ctx context.Context, id string) <-chan Result[struct{}]

	SearchByVector(ctx context.Context, vector []float32, topK int) <-chan Result[Match]
	SearchByContent(ctx context.Context, query string, topK int) <-chan Result[Match]
	QueryByType(ctx context.Context, nodeType string) <-chan Result[Node]

	PutQuantumSignature(ctx context.Context, sig QuantumSignature) <-chan Result[struct{}]
	GetQuantumSignature(ctx context.Context, memoryID string) <-chan Result[QuantumSignature]

	CreateEntanglementEdge(ctx context.Context, e EntanglementEdge) <-chan Result[struct{}]
	TraverseEntanglement(ctx context.Context, fromID string, edgeType EntanglementType) <-chan Result[Node]
}

// one wraps a single value as a one-item, already-closed stream.
func one[T any](v T, err error) <-chan Result[T] {
	ch := make(chan Result[T], 1)
	ch <- Result[T]{Value: v, Err: err, Done: true}
	close(ch)
	return ch
}

func errOnly[T any](err error) <-chan Result[T] {
	var zero T
	return one(zero, err)
}
