package walletstatedb

import "sync"

type memoryBackend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore returns a store that lives only as long as the process.
func NewMemoryStore() *KVStore {
	return newKVStore(&memoryBackend{data: make(map[string][]byte)})
}

func (m *memoryBackend) read(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryBackend) commit(batch map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range batch {
		m.data[k] = v
	}
	return nil
}

func (m *memoryBackend) keys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.data))
	for k := range m.data {
		out = append(out, k)
	}
	return out, nil
}

func (m *memoryBackend) close() error {
	return nil
}
