package memstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore is the durable graph + vector tier: every node, quantum
// signature, and entanglement edge survives a process restart. Grounded
// on internal/database/supabase.go's per-table CRUD method shape
// (Get/Create/Update/List per entity), reworked onto database/sql +
// lib/pq instead of the Supabase REST client since this tier talks
// straight to Postgres for vector search via a plain SQL ORDER BY
// distance query.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens dsn and verifies connectivity with a Ping.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Create(ctx context.Context, n Node) <-chan Result[Node] {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	n.UpdatedAt = n.CreatedAt

	meta, err := json.Marshal(n.Metadata)
	if err != nil {
		return errOnly[Node](fmt.Errorf("marshal metadata: %w", err))
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memory_nodes (id, type, content, vector, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		  SET type = $2, content = $3, vector = $4, metadata = $5, updated_at = $7
	`, n.ID, n.Type, n.Content, vectorLiteral(n.Vector), meta, n.CreatedAt, n.UpdatedAt)
	if err != nil {
		return errOnly[Node](fmt.Errorf("insert memory_nodes: %w", err))
	}
	return one(n, nil)
}

func (s *PostgresStore) Get(ctx context.Context, id string) <-chan Result[Node] {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, type, content, vector, metadata, created_at, updated_at
		FROM memory_nodes WHERE id = $1
	`, id)
	n, err := scanNode(row)
	if err != nil {
		return errOnly[Node](fmt.Errorf("select memory_nodes %s: %w", id, err))
	}
	return one(n, nil)
}

func (s *PostgresStore) Update(ctx context.Context, n Node) <-chan Result[Node] {
	return s.Create(ctx, n)
}

func (s *PostgresStore) Delete(ctx context.Context, id string) <-chan Result[struct{}] {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM memory_nodes WHERE id = $1`, id); err != nil {
		return errOnly[struct{}](fmt.Errorf("delete memory_nodes %s: %w", id, err))
	}
	return one(struct{}{}, nil)
}

// SearchByVector ranks nodes by cosine distance to vector using pgvector's
// <=> operator, streaming ranked matches as they're scanned.
func (s *PostgresStore) SearchByVector(ctx context.Context, vector []float32, topK int) <-chan Result[Match] {
	out := make(chan Result[Match], topK)
	go func() {
		defer close(out)
		rows, err := s.db.QueryContext(ctx, `
			SELECT id, type, content, vector, metadata, created_at, updated_at,
			       1 - (vector <=> $1) AS score
			FROM memory_nodes
			ORDER BY vector <=> $1
			LIMIT $2
		`, vectorLiteral(vector), topK)
		if err != nil {
			out <- Result[Match]{Err: fmt.Errorf("vector search: %w", err), Done: true}
			return
		}
		defer rows.Close()
		streamMatches(out, rows)
	}()
	return out
}

// SearchByContent uses Postgres full-text search (to_tsvector/plainto_tsquery)
// ranked by ts_rank, streaming ranked matches.
func (s *PostgresStore) SearchByContent(ctx context.Context, query string, topK int) <-chan Result[Match] {
	out := make(chan Result[Match], topK)
	go func() {
		defer close(out)
		rows, err := s.db.QueryContext(ctx, `
			SELECT id, type, content, vector, metadata, created_at, updated_at,
			       ts_rank(to_tsvector('english', content), plainto_tsquery('english', $1)) AS score
			FROM memory_nodes
			WHERE to_tsvector('english', content) @@ plainto_tsquery('english', $1)
			ORDER BY score DESC
			LIMIT $2
		`, query, topK)
		if err != nil {
			out <- Result[Match]{Err: fmt.Errorf("content search: %w", err), Done: true}
			return
		}
		defer rows.Close()
		streamMatches(out, rows)
	}()
	return out
}

func (s *PostgresStore) QueryByType(ctx context.Context, nodeType string) <-chan Result[Node] {
	out := make(chan Result[Node], 16)
	go func() {
		defer close(out)
		rows, err := s.db.QueryContext(ctx, `
			SELECT id, type, content, vector, metadata, created_at, updated_at
			FROM memory_nodes WHERE type = $1
		`, nodeType)
		if err != nil {
			out <- Result[Node]{Err: fmt.Errorf("query by type: %w", err), Done: true}
			return
		}
		defer rows.Close()
		for rows.Next() {
			n, err := scanNodeRows(rows)
			if err != nil {
				out <- Result[Node]{Err: err, Done: true}
				return
			}
			out <- Result[Node]{Value: n}
		}
	}()
	return out
}

func (s *PostgresStore) PutQuantumSignature(ctx context.Context, sig QuantumSignature) <-chan Result[struct{}] {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quantum_signatures (memory_id, coherence_fingerprint, entanglement_bonds, decoherence_rate)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (memory_id) DO UPDATE
		  SET coherence_fingerprint = $2, entanglement_bonds = $3, decoherence_rate = $4
	`, sig.MemoryID, sig.CoherenceFingerprint, stringArrayLiteral(sig.EntanglementBonds), sig.DecoherenceRate)
	if err != nil {
		return errOnly[struct{}](fmt.Errorf("insert quantum_signatures: %w", err))
	}
	return one(struct{}{}, nil)
}

func (s *PostgresStore) GetQuantumSignature(ctx context.Context, memoryID string) <-chan Result[QuantumSignature] {
	row := s.db.QueryRowContext(ctx, `
		SELECT memory_id, coherence_fingerprint, entanglement_bonds, decoherence_rate
		FROM quantum_signatures WHERE memory_id = $1
	`, memoryID)
	var sig QuantumSignature
	var bonds string
	if err := row.Scan(&sig.MemoryID, &sig.CoherenceFingerprint, &bonds, &sig.DecoherenceRate); err != nil {
		return errOnly[QuantumSignature](fmt.Errorf("select quantum_signatures %s: %w", memoryID, err))
	}
	sig.EntanglementBonds = parseStringArrayLiteral(bonds)
	return one(sig, nil)
}

func (s *PostgresStore) CreateEntanglementEdge(ctx context.Context, e EntanglementEdge) <-chan Result[struct{}] {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entanglement_edges (from_id, to_id, type, strength, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, e.FromID, e.ToID, string(e.Type), e.Strength, e.CreatedAt)
	if err != nil {
		return errOnly[struct{}](fmt.Errorf("insert entanglement_edges: %w", err))
	}
	return one(struct{}{}, nil)
}

func (s *PostgresStore) TraverseEntanglement(ctx context.Context, fromID string, edgeType EntanglementType) <-chan Result[Node] {
	out := make(chan Result[Node], 16)
	go func() {
		defer close(out)
		rows, err := s.db.QueryContext(ctx, `
			SELECT n.id, n.type, n.content, n.vector, n.metadata, n.created_at, n.updated_at
			FROM entanglement_edges e
			JOIN memory_nodes n ON n.id = e.to_id
			WHERE e.from_id = $1 AND e.type = $2
			ORDER BY e.strength DESC
		`, fromID, string(edgeType))
		if err != nil {
			out <- Result[Node]{Err: fmt.Errorf("traverse entanglement: %w", err), Done: true}
			return
		}
		defer rows.Close()
		for rows.Next() {
			n, err := scanNodeRows(rows)
			if err != nil {
				out <- Result[Node]{Err: err, Done: true}
				return
			}
			out <- Result[Node]{Value: n}
		}
	}()
	return out
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (Node, error) {
	var n Node
	var vec, meta string
	if err := row.Scan(&n.ID, &n.Type, &n.Content, &vec, &meta, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return Node{}, err
	}
	n.Vector = parseVectorLiteral(vec)
	_ = json.Unmarshal([]byte(meta), &n.Metadata)
	return n, nil
}

func scanNodeRows(rows *sql.Rows) (Node, error) {
	return scanNode(rows)
}

func streamMatches(out chan<- Result[Match], rows *sql.Rows) {
	for rows.Next() {
		var n Node
		var vec, meta string
		var score float64
		if err := rows.Scan(&n.ID, &n.Type, &n.Content, &vec, &meta, &n.CreatedAt, &n.UpdatedAt, &score); err != nil {
			out <- Result[Match]{Err: err, Done: true}
			return
		}
		n.Vector = parseVectorLiteral(vec)
		_ = json.Unmarshal([]byte(meta), &n.Metadata)
		out <- Result[Match]{Value: Match{Node: n, Score: score}}
	}
}
