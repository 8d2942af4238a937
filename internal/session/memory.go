package session

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is a Store held in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Record)}
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[id]
	if !ok {
		return nil, ErrNoSession
	}
	return &rec, nil
}

func (m *MemoryStore) Save(ctx context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[rec.ID] = *rec
	return nil
}

func (m *MemoryStore) Destroy(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MemoryStore) Take(ctx context.Context, id string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[id]
	if !ok {
		return nil, ErrNoSession
	}
	delete(m.sessions, id)
	return &rec, nil
}

func (m *MemoryStore) All(ctx context.Context) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := make([]Record, 0, len(m.sessions))
	for _, rec := range m.sessions {
		all = append(all, rec)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Expires.Before(all[j].Expires) })
	return all, nil
}
