package coordinator

import "sync"

// IdentityMap tracks client-temporary identifiers that have been superseded
// by server-assigned ones. Entries are never removed during a session: once
// a temp id is mapped, every future reference to it is rewritten to the real
// id at the next read.
type IdentityMap struct {
	mu  sync.RWMutex
	ids map[string]string
}

// NewIdentityMap creates an empty identity map.
func NewIdentityMap() *IdentityMap {
	return &IdentityMap{ids: make(map[string]string)}
}

// Record stores tempID -> realID. Returns false for the no-op cases: either
// id empty, the two ids equal, or the mapping already present.
func (m *IdentityMap) Record(tempID, realID string) bool {
	if tempID == "" || realID == "" || tempID == realID {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.ids[tempID]; ok && existing == realID {
		return false
	}
	m.ids[tempID] = realID
	return true
}

// Resolve follows the mapping from id to its current server-assigned
// identifier. Chains are followed in case a remapped id was itself remapped;
// the visited guard makes a malformed cycle terminate.
func (m *IdentityMap) Resolve(id string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	visited := 0
	for {
		next, ok := m.ids[id]
		if !ok {
			return id
		}
		id = next
		visited++
		if visited > len(m.ids) {
			return id
		}
	}
}

// Len returns the number of recorded mappings.
func (m *IdentityMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids)
}
