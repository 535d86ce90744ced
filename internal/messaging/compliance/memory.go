package compliance

import (
	"context"
	"sync"
)

// MemoryOptOutStore keeps opt-outs in process. It backs local runs without
// Redis or Postgres; entries are lost on restart.
type MemoryOptOutStore struct {
	mu     sync.RWMutex
	phones map[string]string
}

func NewMemoryOptOutStore() *MemoryOptOutStore {
	return &MemoryOptOutStore{phones: make(map[string]string)}
}

func (s *MemoryOptOutStore) IsOptedOut(_ context.Context, phone string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.phones[phone]
	return ok, nil
}

func (s *MemoryOptOutStore) RecordOptOut(_ context.Context, phone, personID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phones[phone] = personID
	return nil
}

func (s *MemoryOptOutStore) ClearOptOut(_ context.Context, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.phones, phone)
	return nil
}
