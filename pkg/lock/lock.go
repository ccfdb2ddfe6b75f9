// Package lock provides advisory per-record locking for read-modify-write
// sequences on logical document ids. The registry hands out one mutex per
// id on demand and reclaims it when the last holder releases, so the map
// never grows with the keyspace.
package lock

import "sync"

// Registry tracks one advisory lock per id. The zero value is not usable;
// construct with NewRegistry.
type Registry struct {
	mutex sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// NewRegistry creates an empty lock registry.
func NewRegistry() *Registry {
	return &Registry{locks: make(map[string]*entry)}
}

// Lock acquires the advisory lock for id, blocking while another goroutine
// holds it. Locks are not reentrant.
func (r *Registry) Lock(id string) {
	r.mutex.Lock()
	e, ok := r.locks[id]
	if !ok {
		e = &entry{}
		r.locks[id] = e
	}
	e.refs++
	r.mutex.Unlock()

	e.mu.Lock()
}

// Unlock releases the advisory lock for id. The registry entry is removed
// once no goroutine holds or waits for it.
func (r *Registry) Unlock(id string) {
	r.mutex.Lock()
	e, ok := r.locks[id]
	if ok {
		e.refs--
		if e.refs == 0 {
			delete(r.locks, id)
		}
	}
	r.mutex.Unlock()

	if ok {
		e.mu.Unlock()
	}
}

// With runs fn while holding the lock for id, releasing on every exit path
// including panics.
func (r *Registry) With(id string, fn func() error) error {
	r.Lock(id)
	defer r.Unlock(id)
	return fn()
}

// Size returns the number of ids currently locked or contended.
func (r *Registry) Size() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.locks)
}
