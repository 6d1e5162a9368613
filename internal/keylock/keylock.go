// File path: internal/keylock/keylock.go
package keylock

import "sync"

// Map hands out one mutex per investigation ID. Entries are reference
// counted and dropped when no caller holds or waits on them.
type Map struct {
	mu    sync.Mutex
	locks map[int64]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// New returns an empty lock map.
func New() *Map {
	return &Map{locks: make(map[int64]*entry)}
}

// Lock blocks until the lock for id is held and returns its release func.
func (m *Map) Lock(id int64) func() {
	m.mu.Lock()
	e, ok := m.locks[id]
	if !ok {
		e = &entry{}
		m.locks[id] = e
	}
	e.refs++
	m.mu.Unlock()

	e.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			m.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(m.locks, id)
			}
			m.mu.Unlock()
		})
	}
}

// Len reports how many IDs currently have holders or waiters.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
