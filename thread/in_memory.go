package thread

import (
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/agentrun/core"
)

// record is one stored thread. Each record carries its own lock so writers on
// different threads never contend; the store-level lock only guards the map.
type record struct {
	mu       sync.RWMutex
	messages []core.Message
	metadata map[string]string
	created  time.Time
}

// InMemoryStore is a volatile Store implementation keeping threads in a
// process local map. Safe for concurrent access: concurrent readers, single
// writer per thread. Returned slices and maps are copies.
type InMemoryStore struct {
	mu      sync.RWMutex
	threads map[string]*record
}

// NewInMemoryStore constructs an empty in-memory thread store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{threads: make(map[string]*record)}
}

// Create implements Store.
func (s *InMemoryStore) Create(metadata map[string]string) (string, error) {
	id := core.NewID()
	meta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	s.mu.Lock()
	s.threads[id] = &record{metadata: meta, created: time.Now().UTC()}
	s.mu.Unlock()
	return id, nil
}

func (s *InMemoryStore) get(threadID string) (*record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.threads[threadID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownThread, threadID)
	}
	return rec, nil
}

// Append implements Store. Messages are strictly ordered by insertion; past
// messages are never reordered or mutated.
func (s *InMemoryStore) Append(threadID string, msg core.Message) error {
	rec, err := s.get(threadID)
	if err != nil {
		return err
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	rec.mu.Lock()
	rec.messages = append(rec.messages, msg.Clone())
	rec.mu.Unlock()
	return nil
}

// Messages implements Store returning a copy in append order.
func (s *InMemoryStore) Messages(threadID string) ([]core.Message, error) {
	rec, err := s.get(threadID)
	if err != nil {
		return nil, err
	}
	rec.mu.RLock()
	defer rec.mu.RUnlock()
	out := make([]core.Message, len(rec.messages))
	for i, m := range rec.messages {
		out[i] = m.Clone()
	}
	return out, nil
}

// Metadata implements Store.
func (s *InMemoryStore) Metadata(threadID string) (map[string]string, error) {
	rec, err := s.get(threadID)
	if err != nil {
		return nil, err
	}
	rec.mu.RLock()
	defer rec.mu.RUnlock()
	out := make(map[string]string, len(rec.metadata))
	for k, v := range rec.metadata {
		out[k] = v
	}
	return out, nil
}

// Destroy implements Store. Destroying an absent thread is a no-op.
func (s *InMemoryStore) Destroy(threadID string) error {
	s.mu.Lock()
	delete(s.threads, threadID)
	s.mu.Unlock()
	return nil
}
