package postgres

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/socratic/internal/embedding"
	"github.com/felixgeelhaar/socratic/internal/retriever"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// VectorStore implements retriever.VectorStore using PostgreSQL
type VectorStore struct {
	pool *pgxpool.Pool
}

// NewVectorStore creates a new PostgreSQL vector store
func NewVectorStore(pool *pgxpool.Pool) *VectorStore {
	return &VectorStore{pool: pool}
}

// LoadVectors returns an embedder's vectors in index order
func (r *VectorStore) LoadVectors(ctx context.Context, embedder string) ([]retriever.Vector, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT snippet_id, vector FROM snippet_embeddings
		WHERE embedder = $1 ORDER BY position`, embedder)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []retriever.Vector
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, err
		}
		values := embedding.Decode(blob)
		if values == nil {
			return nil, fmt.Errorf("snippet %s: corrupt vector", id)
		}
		out = append(out, retriever.Vector{SnippetID: id, Values: values})
	}
	return out, rows.Err()
}

// ReplaceVectors swaps an embedder's vectors in one transaction
func (r *VectorStore) ReplaceVectors(ctx context.Context, embedder string, vectors []retriever.Vector) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM snippet_embeddings WHERE embedder = $1`, embedder); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for i, v := range vectors {
			batch.Queue(`INSERT INTO snippet_embeddings (embedder, snippet_id, position, dims, vector)
				VALUES ($1, $2, $3, $4, $5)`,
				embedder, v.SnippetID, i, len(v.Values), embedding.Encode(v.Values))
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}
