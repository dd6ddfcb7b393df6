package websocket

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/luciancaetano/chatroom"
)

// Registry maps connection ids to live connections.
//
// It is safe for concurrent use. Snapshot returns a point-in-time copy, so
// callers may iterate it while other goroutines add and remove entries.
type Registry struct {
	conns sync.Map // map[string]*Conn
	count atomic.Int64
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add registers conn under id. It fails only if id is already registered.
func (r *Registry) Add(id string, conn *Conn) error {
	if _, loaded := r.conns.LoadOrStore(id, conn); loaded {
		return fmt.Errorf("%w: %s", chatroom.ErrDuplicateID, id)
	}
	r.count.Add(1)
	return nil
}

// Remove unregisters id and reports whether it was present.
func (r *Registry) Remove(id string) bool {
	if _, loaded := r.conns.LoadAndDelete(id); loaded {
		r.count.Add(-1)
		return true
	}
	return false
}

// Get returns the connection registered under id.
func (r *Registry) Get(id string) (*Conn, bool) {
	if conn, ok := r.conns.Load(id); ok {
		return conn.(*Conn), true
	}
	return nil, false
}

// Snapshot returns the registered connections in no particular order.
func (r *Registry) Snapshot() []*Conn {
	conns := make([]*Conn, 0, r.Len())
	r.conns.Range(func(_, value any) bool {
		conns = append(conns, value.(*Conn))
		return true
	})
	return conns
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	return int(r.count.Load())
}
