package session

import (
	"sync"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// Registry maps session ids to their live connection. It is safe for
// concurrent use across sessions; per-session serialization is provided by
// Lock.
type Registry struct {
	conns cmap.ConcurrentMap[string, *Connection]
	locks cmap.ConcurrentMap[string, *sync.Mutex]
}

func NewRegistry() *Registry {
	return &Registry{
		conns: cmap.New[*Connection](),
		locks: cmap.New[*sync.Mutex](),
	}
}

func (r *Registry) Put(id string, conn *Connection) {
	r.conns.Set(id, conn)
}

func (r *Registry) Get(id string) (*Connection, bool) {
	return r.conns.Get(id)
}

func (r *Registry) Remove(id string) {
	r.conns.Remove(id)
}

// RemoveIf removes id only while it still maps to conn.
func (r *Registry) RemoveIf(id string, conn *Connection) bool {
	return r.conns.RemoveCb(id, func(_ string, current *Connection, exists bool) bool {
		return exists && current == conn
	})
}

func (r *Registry) Count() int {
	return r.conns.Count()
}

func (r *Registry) IDs() []string {
	return r.conns.Keys()
}

// Lock acquires the mutation scope for one session id and returns its
// release func. Mutexes are created on first use and kept for the process
// lifetime.
func (r *Registry) Lock(id string) func() {
	mu := r.locks.Upsert(id, nil, func(exists bool, current, _ *sync.Mutex) *sync.Mutex {
		if exists {
			return current
		}
		return &sync.Mutex{}
	})
	mu.Lock()
	return mu.Unlock
}
