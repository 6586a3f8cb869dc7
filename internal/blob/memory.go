package blob

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Memory is an in-process Store for tests and single-node setups without
// object storage.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

func (m *Memory) Upload(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.objects[key] = data
	m.mu.Unlock()
	return m.PublicURL(key), nil
}

func (m *Memory) PublicURL(key string) string {
	return fmt.Sprintf("memory://evidencias/%s", key)
}

// Get returns a stored object, for tests.
func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	return data, ok
}
