// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu     sync.RWMutex
	agents map[string]*AgentRecord // keyed by agent key
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		agents: make(map[string]*AgentRecord),
	}
}

// SaveAgent inserts or replaces the record for rec.Key.
func (m *MockStore) SaveAgent(ctx context.Context, rec *AgentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Match the UNIQUE(assistant_id) constraint
	for key, existing := range m.agents {
		if key != rec.Key && existing.AssistantID == rec.AssistantID {
			return ErrDuplicateAgent
		}
	}

	r := *rec
	if existing, ok := m.agents[r.Key]; ok {
		r.CreatedAt = existing.CreatedAt
	}
	m.agents[r.Key] = &r
	return nil
}

// GetAgent retrieves an agent record by key.
func (m *MockStore) GetAgent(ctx context.Context, key string) (*AgentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.agents[key]
	if !ok {
		return nil, ErrNotFound
	}
	result := *r
	return &result, nil
}

// ListAgents returns every agent record ordered by key.
func (m *MockStore) ListAgents(ctx context.Context) ([]*AgentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	agents := make([]*AgentRecord, 0, len(m.agents))
	for _, r := range m.agents {
		rc := *r
		agents = append(agents, &rc)
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].Key < agents[j].Key })
	return agents, nil
}

// DeleteAgent removes an agent record.
func (m *MockStore) DeleteAgent(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.agents[key]; !ok {
		return ErrNotFound
	}
	delete(m.agents, key)
	return nil
}

// Close is a no-op for MockStore.
func (m *MockStore) Close() error {
	return nil
}

var _ Store = (*MockStore)(nil)
