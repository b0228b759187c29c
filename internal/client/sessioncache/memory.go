package sessioncache

import (
	"context"
	"sync"
)

// MemoryStore is an in-process EphemeralStore. It is lost on restart.
type MemoryStore struct {
	mu   sync.RWMutex
	snap *Snapshot
}

var _ EphemeralStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) LoadSnapshot(_ context.Context) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.snap == nil {
		return nil, nil
	}
	snap := *s.snap
	return &snap, nil
}

func (s *MemoryStore) SaveSnapshot(_ context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snap = &snap
	return nil
}

func (s *MemoryStore) ClearSnapshot(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snap = nil
	return nil
}
