package health

import "sync"

// MemoryStore keeps health records in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	recs map[string]Record
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: make(map[string]Record)}
}

func (m *MemoryStore) LoadHealth(source string) (Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.recs[source]
	return rec, ok, nil
}

func (m *MemoryStore) SaveHealth(source string, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[source] = rec
	return nil
}

func (m *MemoryStore) ListHealth() (map[string]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Record, len(m.recs))
	for k, v := range m.recs {
		out[k] = v
	}
	return out, nil
}
