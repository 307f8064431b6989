package websocket

import (
	"encoding/json"
	"log"
	"sync"

	"usersim/pkg/types"
)

// Registry is the process-wide set of connected viewers. Entries are added
// on successful handshake and removed on socket close or delivery failure.
// FUNCTIONAL DISCOVERY: RWMutex fits the read-heavy broadcast pattern —
// many fan-outs per membership change
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Connection
}

// NewRegistry creates an empty viewer registry. Registries are constructed
// at startup and injected, never package globals, so isolated instances
// can coexist in tests.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]*Connection),
	}
}

// Register adds a connection to the broadcast set.
func (r *Registry) Register(conn *Connection) {
	if conn == nil {
		return
	}
	r.mu.Lock()
	r.clients[conn.ID()] = conn
	r.mu.Unlock()

	log.Printf("viewer connected: id=%s total=%d", conn.ID(), r.Count())
}

// Unregister removes a connection. Idempotent.
func (r *Registry) Unregister(conn *Connection) {
	if conn == nil {
		return
	}
	r.mu.Lock()
	delete(r.clients, conn.ID())
	r.mu.Unlock()
}

// Count returns the current viewer count.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Broadcast serializes the event once and attempts delivery to every
// registered viewer. One client's failure never prevents delivery to the
// rest: the failing client is logged, unregistered and closed so later
// broadcasts do not keep failing against it.
func (r *Registry) Broadcast(event types.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("failed to marshal %s event: %v", event.EventType(), err)
		return
	}
	frame := EncodeText(data)

	// Snapshot under the read lock; deliveries happen outside it so a
	// slow client cannot block membership changes.
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.clients))
	for _, conn := range r.clients {
		conns = append(conns, conn)
	}
	r.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.Send(frame); err != nil {
			log.Printf("dropping viewer %s: %v", conn.ID(), err)
			r.Unregister(conn)
			_ = conn.Close()
		}
	}
}
