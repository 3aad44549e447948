package lock

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a process local Store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (s *MemoryStore) TryAcquire(_ context.Context, e Entry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[e.ResourceID]; ok {
		return false, nil
	}
	s.entries[e.ResourceID] = e
	return true, nil
}

func (s *MemoryStore) Release(_ context.Context, resourceID string) error {
	s.mu.Lock()
	delete(s.entries, resourceID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, resourceID string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[resourceID]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *MemoryStore) List(_ context.Context) ([]Entry, error) {
	s.mu.Lock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].AcquiredAt.Before(out[j].AcquiredAt) })
	return out, nil
}

func (s *MemoryStore) DeleteOlderThan(_ context.Context, cutoff time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, e := range s.entries {
		if e.AcquiredAt.Before(cutoff) {
			delete(s.entries, id)
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
