// Package local keeps JSON documents on disk, one file per record, laid
// out as <root>/<collection>/<id>.json.
package local

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const ext = ".json"

// Store is safe for concurrent use within one process.
type Store struct {
	root string
	mu   sync.RWMutex
}

func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", root, err)
	}
	return &Store{root: root}, nil
}

func (s *Store) Path() string { return s.root }

// record maps an id to its file, refusing ids that could leave the
// collection directory.
func (s *Store) record(collection, id string) (string, error) {
	switch {
	case id == "", id == ".", id == "..", strings.ContainsAny(id, `/\`):
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return filepath.Join(s.root, collection, id+ext), nil
}

// Save replaces the record. Readers see either the old or the new
// document, never a partial one.
func (s *Store) Save(collection, id string, v any) error {
	path, err := s.record(collection, id)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return writeAtomic(path, append(data, '\n'))
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Load decodes the record into v.
func (s *Store) Load(collection, id string, v any) error {
	path, err := s.record(collection, id)
	if err != nil {
		return err
	}

	s.mu.RLock()
	data, err := os.ReadFile(path)
	s.mu.RUnlock()

	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ErrNotFound
	case err != nil:
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Store) Delete(collection, id string) error {
	path, err := s.record(collection, id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	err = os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	return err
}

// List returns the ids in a collection. A collection that was never
// written is empty, not an error.
func (s *Store) List(collection string) ([]string, error) {
	s.mu.RLock()
	entries, err := os.ReadDir(filepath.Join(s.root, collection))
	s.mu.RUnlock()

	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		id, ok := strings.CutSuffix(e.Name(), ext)
		if !ok || e.IsDir() || strings.HasPrefix(id, ".") {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Store) Exists(collection, id string) bool {
	path, err := s.record(collection, id)
	if err != nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, err = os.Stat(path)
	return err == nil
}
