package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the hot/recent tier: nodes keyed by ID with a bounded TTL,
// plus secondary index sets (SAdd) for type and entanglement lookups.
type RedisStore struct {
	rdb       *redis.Client
	keyPrefix string
	nodeTTL   time.Duration
}

// NewRedisStore dials addr/db and verifies connectivity with a Ping,
// exactly as GoRedisAdapter does in internal/infra/redis_adapter.go.
func NewRedisStore(addr string, db int, keyPrefix string, nodeTTL time.Duration) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &RedisStore{rdb: rdb, keyPrefix: keyPrefix, nodeTTL: nodeTTL}, nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func (s *RedisStore) nodeKey(id string) string { return s.keyPrefix + "node:" + id }
func (s *RedisStore) typeKey(t string) string   { return s.keyPrefix + "type:" + t }
func (s *RedisStore) sigKey(id string) string   { return s.keyPrefix + "sig:" + id }
func (s *RedisStore) edgeKey(id string, t EntanglementType) string {
	return s.keyPrefix + "edge:" + id + ":" + string(t)
}

func (s *RedisStore) Create(ctx context.Context, n Node) <-chan Result[Node] {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	n.UpdatedAt = n.CreatedAt

	data, err := json.Marshal(n)
	if err != nil {
		return errOnly[Node](fmt.Errorf("marshal node: %w", err))
	}
	if err := s.rdb.Set(ctx, s.nodeKey(n.ID), data, s.nodeTTL).Err(); err != nil {
		return errOnly[Node](fmt.Errorf("redis SET node: %w", err))
	}
	if n.Type != "" {
		if err := s.rdb.SAdd(ctx, s.typeKey(n.Type), n.ID).Err(); err != nil {
			return errOnly[Node](fmt.Errorf("redis SADD type index: %w", err))
		}
	}
	return one(n, nil)
}

func (s *RedisStore) Get(ctx context.Context, id string) <-chan Result[Node] {
	data, err := s.rdb.Get(ctx, s.nodeKey(id)).Bytes()
	if err != nil {
		return errOnly[Node](fmt.Errorf("redis GET node %s: %w", id, err))
	}
	var n Node
	if err := json.Unmarshal(data, &n); err != nil {
		return errOnly[Node](fmt.Errorf("unmarshal node %s: %w", id, err))
	}
	return one(n, nil)
}

func (s *RedisStore) Update(ctx context.Context, n Node) <-chan Result[Node] {
	n.UpdatedAt = time.Now()
	data, err := json.Marshal(n)
	if err != nil {
		return errOnly[Node](fmt.Errorf("marshal node: %w", err))
	}
	if err := s.rdb.Set(ctx, s.nodeKey(n.ID), data, s.nodeTTL).Err(); err != nil {
		return errOnly[Node](fmt.Errorf("redis SET node: %w", err))
	}
	return one(n, nil)
}

func (s *RedisStore) Delete(ctx context.Context, id string) <-chan Result[struct{}] {
	if err := s.rdb.Del(ctx, s.nodeKey(id)).Err(); err != nil {
		return errOnly[struct{}](fmt.Errorf("redis DEL node %s: %w", id, err))
	}
	return one(struct{}{}, nil)
}

// SearchByVector is not implemented by the hot tier: Redis holds no
// vector index here, so this delegates the search concept entirely to
// PostgresStore. Returning a single error result keeps the Store
// interface uniform without silently returning an empty match set.
func (s *RedisStore) SearchByVector(ctx context.Context, vector []float32, topK int) <-chan Result[Match] {
	return errOnly[Match](fmt.Errorf("memstore: vector search not supported by the hot tier"))
}

func (s *RedisStore) SearchByContent(ctx context.Context, query string, topK int) <-chan Result[Match] {
	return errOnly[Match](fmt.Errorf("memstore: content search not supported by the hot tier"))
}

func (s *RedisStore) QueryByType(ctx context.Context, nodeType string) <-chan Result[Node] {
	out := make(chan Result[Node], 8)
	go func() {
		defer close(out)
		ids, err := s.rdb.SMembers(ctx, s.typeKey(nodeType)).Result()
		if err != nil {
			out <- Result[Node]{Err: fmt.Errorf("redis SMEMBERS type index: %w", err), Done: true}
			return
		}
		for i, id := range ids {
			data, err := s.rdb.Get(ctx, s.nodeKey(id)).Bytes()
			if err != nil {
				continue
			}
			var n Node
			if err := json.Unmarshal(data, &n); err != nil {
				continue
			}
			out <- Result[Node]{Value: n, Done: i == len(ids)-1}
		}
	}()
	return out
}

func (s *RedisStore) PutQuantumSignature(ctx context.Context, sig QuantumSignature) <-chan Result[struct{}] {
	data, err := json.Marshal(sig)
	if err != nil {
		return errOnly[struct{}](fmt.Errorf("marshal signature: %w", err))
	}
	if err := s.rdb.Set(ctx, s.sigKey(sig.MemoryID), data, s.nodeTTL).Err(); err != nil {
		return errOnly[struct{}](fmt.Errorf("redis SET signature: %w", err))
	}
	return one(struct{}{}, nil)
}

func (s *RedisStore) GetQuantumSignature(ctx context.Context, memoryID string) <-chan Result[QuantumSignature] {
	data, err := s.rdb.Get(ctx, s.sigKey(memoryID)).Bytes()
	if err != nil {
		return errOnly[QuantumSignature](fmt.Errorf("redis GET signature %s: %w", memoryID, err))
	}
	var sig QuantumSignature
	if err := json.Unmarshal(data, &sig); err != nil {
		return errOnly[QuantumSignature](fmt.Errorf("unmarshal signature %s: %w", memoryID, err))
	}
	return one(sig, nil)
}

func (s *RedisStore) CreateEntanglementEdge(ctx context.Context, e EntanglementEdge) <-chan Result[struct{}] {
	if err := s.rdb.SAdd(ctx, s.edgeKey(e.FromID, e.Type), e.ToID).Err(); err != nil {
		return errOnly[struct{}](fmt.Errorf("redis SADD entanglement edge: %w", err))
	}
	return one(struct{}{}, nil)
}

func (s *RedisStore) TraverseEntanglement(ctx context.Context, fromID string, edgeType EntanglementType) <-chan Result[Node] {
	out := make(chan Result[Node], 8)
	go func() {
		defer close(out)
		ids, err := s.rdb.SMembers(ctx, s.edgeKey(fromID, edgeType)).Result()
		if err != nil {
			out <- Result[Node]{Err: fmt.Errorf("redis SMEMBERS entanglement edge: %w", err), Done: true}
			return
		}
		for i, id := range ids {
			data, err := s.rdb.Get(ctx, s.nodeKey(id)).Bytes()
			if err != nil {
				continue
			}
			var n Node
			if err := json.Unmarshal(data, &n); err != nil {
				continue
			}
			out <- Result[Node]{Value: n, Done: i == len(ids)-1}
		}
	}()
	return out
}
