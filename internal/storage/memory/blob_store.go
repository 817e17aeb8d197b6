// Package memory keeps archive artifacts in process memory, for dry runs.
package memory

import (
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
)

// BlobStore implements storage.Store over a map keyed by cleaned path.
type BlobStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New creates an empty BlobStore.
func New() *BlobStore {
	return &BlobStore{data: make(map[string][]byte)}
}

// PutObject copies the content and returns a memory:// URI.
func (s *BlobStore) PutObject(_ context.Context, p string, _ string, r io.Reader) (string, error) {
	key := path.Clean(strings.TrimPrefix(p, "/"))
	if p == "" || key == "." {
		return "", fmt.Errorf("object path is required")
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read data from reader: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = body
	return "memory://" + key, nil
}

// GetObject returns a copy of the stored content.
func (s *BlobStore) GetObject(_ context.Context, p string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	body, ok := s.data[path.Clean(strings.TrimPrefix(p, "/"))]
	if !ok {
		return nil, fmt.Errorf("object %s not found", p)
	}
	return append([]byte(nil), body...), nil
}

// List returns the sorted names of objects directly under dir.
func (s *BlobStore) List(_ context.Context, dir string) ([]string, error) {
	prefix := path.Clean(strings.TrimPrefix(dir, "/")) + "/"
	s.mu.RLock()
	defer s.mu.RUnlock()
	var names []string
	for key := range s.data {
		rest, ok := strings.CutPrefix(key, prefix)
		if !ok || strings.Contains(rest, "/") {
			continue
		}
		names = append(names, rest)
	}
	sort.Strings(names)
	return names, nil
}

// Len reports how many objects are held.
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
