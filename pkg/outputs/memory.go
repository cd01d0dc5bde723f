package outputs

import (
	"sort"
	"sync"
)

// MemoryStore is an in-process Store. Suitable for tests and ephemeral
// runs where artifacts do not need to survive the process.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Store implements Store.
func (s *MemoryStore) Store(record Record) (Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = record
	return Ref{ID: record.ID, Storage: "memory"}, nil
}

// Read implements Store.
func (s *MemoryStore) Read(id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return record, nil
}

// Exists implements Store.
func (s *MemoryStore) Exists(id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[id]
	return ok, nil
}

// List implements Store. Records come back newest first.
func (s *MemoryStore) List() ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]Record, 0, len(s.records))
	for _, record := range s.records {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].CreatedAt > records[j].CreatedAt })
	return records, nil
}

// DeleteOlderThan implements Store.
func (s *MemoryStore) DeleteOlderThan(cutoff int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, record := range s.records {
		if record.CreatedAt < cutoff {
			delete(s.records, id)
			removed++
		}
	}
	return removed, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
