package edit

import (
	"sync"

	"github.com/matst80/slask-grid/pkg/sorting"
	"github.com/matst80/slask-grid/pkg/types"
)

// Manager hands out one session per operator and rebuilds them all when the
// grid is replaced.
type Manager struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	source    types.SnapshotSource
	committer types.Committer
	sorter    *sorting.Sorter
}

func NewManager(source types.SnapshotSource, committer types.Committer, sorter *sorting.Sorter) *Manager {
	return &Manager{
		sessions:  map[string]*Session{},
		source:    source,
		committer: committer,
		sorter:    sorter,
	}
}

func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *Manager) GetOrCreate(id string) *Session {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return s
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok = m.sessions[id]; ok {
		return s
	}
	s = NewSession(id, m.source, m.committer, m.sorter)
	m.sessions[id] = s
	return s
}

func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// RefreshAll rebuilds every session against the latest grid. Their pending
// edits refer to records that may no longer exist and are dropped.
func (m *Manager) RefreshAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		s.Refresh()
	}
}
