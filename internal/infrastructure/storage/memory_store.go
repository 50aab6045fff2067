package storage

import (
	"context"
	"errors"
	"sync"

	returnsapp "github.com/omnisync/backend/internal/application/returns"
)

var _ returnsapp.LabelStore = (*MemoryLabelStore)(nil)

type storedLabel struct {
	contentType string
	data        []byte
}

// MemoryLabelStore keeps labels in process memory. Used in development and
// tests when no bucket is configured; contents are lost on restart.
type MemoryLabelStore struct {
	mu     sync.RWMutex
	labels map[string]storedLabel
}

// NewMemoryLabelStore creates an empty store
func NewMemoryLabelStore() *MemoryLabelStore {
	return &MemoryLabelStore{labels: make(map[string]storedLabel)}
}

// Put implements returns.LabelStore
func (s *MemoryLabelStore) Put(_ context.Context, key, contentType string, data []byte) error {
	if key == "" {
		return errors.New("storage key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.labels[key] = storedLabel{contentType: contentType, data: append([]byte(nil), data...)}
	return nil
}

// Get implements returns.LabelStore
func (s *MemoryLabelStore) Get(_ context.Context, key string) ([]byte, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.labels[key]
	if !ok {
		return nil, "", returnsapp.ErrLabelNotFound
	}
	return append([]byte(nil), l.data...), l.contentType, nil
}

// Len returns the number of stored labels
func (s *MemoryLabelStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.labels)
}
