package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/becomeliminal/nim-memory/memory"
)

// VectorIndex implements memory.VectorIndex with pgvector cosine distance.
type VectorIndex struct {
	pool     *pgxpool.Pool
	ownsPool bool
}

// NewVectorIndex creates the vector extension and table for dims-sized
// embeddings.
func NewVectorIndex(ctx context.Context, pool *pgxpool.Pool, dims int, owned bool) (*VectorIndex, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("invalid vector dimensions %d", dims)
	}
	_, err := pool.Exec(ctx, fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS memory_vectors (
			namespace TEXT NOT NULL,
			id        TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			metadata  JSONB NOT NULL DEFAULT '{}',
			PRIMARY KEY (namespace, id)
		);
	`, dims))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector schema: %w", err)
	}
	return &VectorIndex{pool: pool, ownsPool: owned}, nil
}

func (v *VectorIndex) Upsert(ctx context.Context, namespace, id string, vector []float32, metadata map[string]string) error {
	meta, err := marshalMetadata(metadata)
	if err != nil {
		return err
	}
	_, err = v.pool.Exec(ctx, `
		INSERT INTO memory_vectors (namespace, id, embedding, metadata)
		VALUES ($1, $2, $3, $4::jsonb)
		ON CONFLICT (namespace, id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata`,
		namespace, id, pgvector.NewVector(vector), meta)
	if err != nil {
		return fmt.Errorf("upsert vector %s/%s: %w", namespace, id, err)
	}
	return nil
}

func (v *VectorIndex) Query(ctx context.Context, namespace string, vector []float32, topK int, filter map[string]string) ([]memory.VectorMatch, error) {
	if topK <= 0 {
		return nil, nil
	}
	meta, err := marshalMetadata(filter)
	if err != nil {
		return nil, err
	}

	rows, err := v.pool.Query(ctx, `
		SELECT id, 1 - (embedding <=> $2) AS similarity, metadata::text
		FROM memory_vectors
		WHERE namespace = $1 AND metadata @> $3::jsonb
		ORDER BY embedding <=> $2
		LIMIT $4`,
		namespace, pgvector.NewVector(vector), meta, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to search vectors: %w", err)
	}
	defer rows.Close()

	var matches []memory.VectorMatch
	for rows.Next() {
		var (
			m   memory.VectorMatch
			raw string
		)
		if err := rows.Scan(&m.ID, &m.Score, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan vector match: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &m.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", m.ID, err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating vector matches: %w", err)
	}
	return matches, nil
}

func (v *VectorIndex) Delete(ctx context.Context, namespace, id string) error {
	if _, err := v.pool.Exec(ctx,
		`DELETE FROM memory_vectors WHERE namespace = $1 AND id = $2`, namespace, id); err != nil {
		return fmt.Errorf("delete vector %s/%s: %w", namespace, id, err)
	}
	return nil
}

func (v *VectorIndex) DeleteNamespace(ctx context.Context, namespace string) error {
	if _, err := v.pool.Exec(ctx,
		`DELETE FROM memory_vectors WHERE namespace = $1`, namespace); err != nil {
		return fmt.Errorf("delete namespace %s: %w", namespace, err)
	}
	return nil
}

// Close releases the connection pool if the index owns it.
func (v *VectorIndex) Close() error {
	if v.ownsPool {
		v.pool.Close()
	}
	return nil
}

func marshalMetadata(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), nil
}
