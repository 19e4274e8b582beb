package cache

import (
	"context"
	"sync"
)

// Memory is a process-local Store. It is the default when no Redis
// address is configured; entries live until the adapter is recreated.
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	audio, ok := m.entries[key]
	return audio, ok, nil
}

func (m *Memory) Set(_ context.Context, key string, audio []byte) error {
	m.mu.Lock()
	m.entries[key] = audio
	m.mu.Unlock()
	return nil
}
