package retriever

import (
	"context"
	"sync"
)

// MemoryStore is an in-process VectorStore.
type MemoryStore struct {
	mu      sync.RWMutex
	vectors map[string][]Vector
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{vectors: make(map[string][]Vector)}
}

func (s *MemoryStore) LoadVectors(_ context.Context, embedder string) ([]Vector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.vectors[embedder]
	out := make([]Vector, len(src))
	copy(out, src)
	return out, nil
}

func (s *MemoryStore) ReplaceVectors(_ context.Context, embedder string, vectors []Vector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]Vector, len(vectors))
	copy(cp, vectors)
	s.vectors[embedder] = cp
	return nil
}

// Ensure MemoryStore implements VectorStore
var _ VectorStore = (*MemoryStore)(nil)
