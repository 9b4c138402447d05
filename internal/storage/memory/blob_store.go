// Package memory stores blob content in-memory for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/meizi0715/bdt-v1.5/internal/storage"
)

// BlobStore stores objects in a map guarded by a RWMutex.
type BlobStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewBlobStore creates a new in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{data: make(map[string][]byte)}
}

// Put stores a copy of data under name.
func (s *BlobStore) Put(_ context.Context, name string, data []byte) error {
	if name == "" {
		return fmt.Errorf("name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[name] = append([]byte(nil), data...)
	return nil
}

// Get returns a copy of the stored object.
func (s *BlobStore) Get(_ context.Context, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[name]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", name, storage.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

// List returns stored names in lexical order.
func (s *BlobStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.data))
	for name := range s.data {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes the named object.
func (s *BlobStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[name]; !ok {
		return fmt.Errorf("delete %s: %w", name, storage.ErrNotFound)
	}
	delete(s.data, name)
	return nil
}
