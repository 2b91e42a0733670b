package store

import (
	"context"
	"sort"
	"sync"

	"github.com/telhawk-systems/eventd/internal/subscription"
)

// Memory keeps everything in process memory.
type Memory struct {
	mu       sync.RWMutex
	records  map[string]subscription.Record
	settings *Settings
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string]subscription.Record)}
}

func (m *Memory) Load(ctx context.Context) ([]subscription.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]subscription.Record, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Save(ctx context.Context, rec subscription.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = rec
	return nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return ErrNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *Memory) LoadConfig(ctx context.Context) (Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.settings == nil {
		return Settings{}, ErrNotFound
	}
	return *m.settings, nil
}

func (m *Memory) SaveConfig(ctx context.Context, s Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = &s
	return nil
}

func (m *Memory) Close() error { return nil }
