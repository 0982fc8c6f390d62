package sqlite

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/socratic/internal/embedding"
	"github.com/felixgeelhaar/socratic/internal/retriever"
)

// VectorStore keeps snippet embeddings keyed by embedder name, so switching
// models never mixes vector spaces.
type VectorStore struct {
	db *DB
}

// NewVectorStore creates a new SQLite-backed vector store.
func NewVectorStore(db *DB) *VectorStore {
	return &VectorStore{db: db}
}

// LoadVectors returns the vectors of an embedder in index order.
func (s *VectorStore) LoadVectors(ctx context.Context, embedder string) ([]retriever.Vector, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT snippet_id, vector FROM snippet_embeddings
		WHERE embedder = ? ORDER BY position ASC`, embedder)
	if err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}
	defer rows.Close()

	var out []retriever.Vector
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scan vector: %w", err)
		}
		values := embedding.Decode(blob)
		if values == nil {
			return nil, fmt.Errorf("snippet %s: corrupt vector", id)
		}
		out = append(out, retriever.Vector{SnippetID: id, Values: values})
	}
	return out, rows.Err()
}

// ReplaceVectors atomically swaps all vectors of an embedder.
func (s *VectorStore) ReplaceVectors(ctx context.Context, embedder string, vectors []retriever.Vector) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM snippet_embeddings WHERE embedder = ?", embedder); err != nil {
		return fmt.Errorf("clear vectors: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO snippet_embeddings (embedder, snippet_id, position, dims, vector)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, v := range vectors {
		if _, err := stmt.ExecContext(ctx, embedder, v.SnippetID, i, len(v.Values), embedding.Encode(v.Values)); err != nil {
			return fmt.Errorf("insert vector %s: %w", v.SnippetID, err)
		}
	}
	return tx.Commit()
}
