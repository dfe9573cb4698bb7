package storage

import (
	"context"
	"sync"
)

// Memory is a process-local Store. Namespaces created from the same
// MemoryBackend share one map.
type Memory struct {
	backend   *MemoryBackend
	namespace string
}

type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string]map[string]string
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string]map[string]string)}
}

// Namespace returns the Store for ns.
func (b *MemoryBackend) Namespace(ns string) Store {
	return &Memory{backend: b, namespace: ns}
}

// NewMemory returns a standalone Store, handy in tests.
func NewMemory() *Memory {
	return &Memory{backend: NewMemoryBackend(), namespace: "default"}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.backend.mu.RLock()
	defer m.backend.mu.RUnlock()
	v, ok := m.backend.data[m.namespace][key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.backend.mu.Lock()
	defer m.backend.mu.Unlock()
	ns := m.backend.data[m.namespace]
	if ns == nil {
		ns = make(map[string]string)
		m.backend.data[m.namespace] = ns
	}
	ns[key] = value
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.backend.mu.Lock()
	defer m.backend.mu.Unlock()
	delete(m.backend.data[m.namespace], key)
	return nil
}
