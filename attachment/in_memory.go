package attachment

import (
	"sort"
	"sync"
)

// InMemoryStore is a process-local Store keeping attachment bytes in a nested
// map guarded by an RWMutex. Data is copied on save and retrieval so callers
// cannot mutate internal buffers.
//
// Layout: threadID -> name -> raw bytes
//
// It enforces no retention limits, size quotas or eviction. For production,
// prefer a durable implementation that survives process restarts.
type InMemoryStore struct {
	mu      sync.RWMutex
	content map[string]map[string][]byte
}

// NewInMemoryStore returns an empty in-memory attachment store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{content: make(map[string]map[string][]byte)}
}

// Save implements Store. The input slice is copied before storage.
func (s *InMemoryStore) Save(threadID, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.content[threadID]; !exists {
		s.content[threadID] = make(map[string][]byte)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	s.content[threadID][name] = cp
	return nil
}

// Get implements Store returning a copy of the stored bytes.
func (s *InMemoryStore) Get(threadID, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.content[threadID]
	if !ok {
		return nil, ErrNotFound
	}
	data, ok := m[name]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

// List implements Store. Names are returned sorted for deterministic output.
func (s *InMemoryStore) List(threadID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := s.content[threadID]
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Release implements Store. Releasing an absent thread is a no-op.
func (s *InMemoryStore) Release(threadID string) error {
	s.mu.Lock()
	delete(s.content, threadID)
	s.mu.Unlock()
	return nil
}
