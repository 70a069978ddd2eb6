package stream

import (
	"context"
	"sync"
)

// Memory is the in-process Service implementation, used for single-node
// deployments and as the test double.
type Memory struct {
	mu       sync.RWMutex
	settings Settings
	counts   Counts
}

var _ Service = (*Memory)(nil)

// NewMemory builds a Memory service with the given starting settings.
func NewMemory(settings Settings) *Memory {
	return &Memory{settings: settings}
}

func (m *Memory) Settings(_ context.Context) (Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings, nil
}

func (m *Memory) UpdateSettings(_ context.Context, s Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = s
	return nil
}

func (m *Memory) IncViewers(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts.Viewers++
	if m.counts.Viewers > m.counts.MaxViewers {
		m.counts.MaxViewers = m.counts.Viewers
	}
	return m.counts.Viewers, nil
}

func (m *Memory) DecViewers(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts.Viewers > 0 {
		m.counts.Viewers--
	}
	return m.counts.Viewers, nil
}

func (m *Memory) Counts(_ context.Context) (Counts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counts, nil
}
