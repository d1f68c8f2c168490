package graph

import "sync"

// Manager hands out one graph store per engagement. Stores are created on
// first use and shared by every job running against the same engagement;
// single-writer discipline across jobs is enforced by the queue's
// engagement-scoped locks, not here.
type Manager struct {
	mu     sync.Mutex
	stores map[string]*Store
}

// NewManager creates an empty graph manager.
func NewManager() *Manager {
	return &Manager{stores: make(map[string]*Store)}
}

// For returns the graph store for the given engagement, creating it on
// first use.
func (m *Manager) For(engagementID string) *Store {
	m.mu.Lock()
	defer m.mu.Unlock()

	store, ok := m.stores[engagementID]
	if !ok {
		store = NewStore(engagementID)
		m.stores[engagementID] = store
	}
	return store
}

// Snapshot returns a snapshot of the engagement's graph, or nil when no graph
// exists for it yet.
func (m *Manager) Snapshot(engagementID string) *Snapshot {
	m.mu.Lock()
	store, ok := m.stores[engagementID]
	m.mu.Unlock()

	if !ok {
		return nil
	}
	return store.Snapshot()
}
