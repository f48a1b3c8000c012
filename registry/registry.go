// Package registry is the server-wide side-table mapping an authenticated
// user to its set of live connections (spec.md §3 "the server owns a global
// mapping from user_id → active connection set", §9 "model the connection
// registry as a side-table"). It also performs per-chat fan-out delivery.
// The concurrent-map-of-sets shape is adapted from the teacher's
// Server.channels map[string]*channelState guarded by a single mutex in
// tunnel/server/server.go.
package registry

import (
	"sync"

	"github.com/google/uuid"
)

// Conn is the minimal surface the registry needs from a live connection: a
// stable identity and a non-blocking enqueue of a server-initiated message.
// Enqueue takes the message type and plaintext payload rather than an
// opaque pre-encoded frame, since each connection negotiates its own
// session key and must encrypt the push for itself (spec.md §4.2) — the
// registry never touches wire bytes. The connection package's
// *connection.Conn implements this.
type Conn interface {
	ID() uuid.UUID
	Enqueue(messageType uint16, payload []byte) error
}

// Registry tracks which connections belong to which authenticated user.
type Registry struct {
	mu    sync.RWMutex
	byUser map[uuid.UUID]map[uuid.UUID]Conn // userID -> connID -> Conn
	count  int64
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{byUser: make(map[uuid.UUID]map[uuid.UUID]Conn)}
}

// Bind associates c with userID. Idempotent per (userID, c.ID()).
func (r *Registry) Bind(userID uuid.UUID, c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.byUser[userID]
	if !ok {
		set = make(map[uuid.UUID]Conn)
		r.byUser[userID] = set
	}
	if _, exists := set[c.ID()]; !exists {
		r.count++
	}
	set[c.ID()] = c
}

// Unbind removes c from userID's connection set, pruning the user entry
// once empty.
func (r *Registry) Unbind(userID uuid.UUID, connID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.byUser[userID]
	if !ok {
		return
	}
	if _, exists := set[connID]; !exists {
		return
	}
	delete(set, connID)
	r.count--
	if len(set) == 0 {
		delete(r.byUser, userID)
	}
}

// ConnectionsFor returns a snapshot of userID's live connections.
func (r *Registry) ConnectionsFor(userID uuid.UUID) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.byUser[userID]
	out := make([]Conn, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

// IsOnline reports whether userID has at least one live connection.
func (r *Registry) IsOnline(userID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// CurrentUsers returns the number of distinct users with at least one live
// connection, the "current_users" figure in the discovery packet
// (spec.md §4.7).
func (r *Registry) CurrentUsers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

// Deliver pushes (messageType, payload) to every connection bound to
// userID except excludeConnID (the sender's own connection, per spec.md
// §13's decision that the sender does not receive its own
// MESSAGE_RECEIVE). Delivery is best-effort: a write/encrypt error only
// drops that one recipient. Returns the count of connections the message
// was successfully enqueued to.
func (r *Registry) Deliver(userID uuid.UUID, excludeConnID uuid.UUID, messageType uint16, payload []byte) int {
	delivered := 0
	for _, c := range r.ConnectionsFor(userID) {
		if c.ID() == excludeConnID {
			continue
		}
		if err := c.Enqueue(messageType, payload); err == nil {
			delivered++
		}
	}
	return delivered
}

// FanOut delivers (messageType, payload) to every user in participantIDs,
// excluding excludeConnID, and returns the total number of successful
// deliveries across all participants (spec.md P8).
func (r *Registry) FanOut(participantIDs []uuid.UUID, excludeConnID uuid.UUID, messageType uint16, payload []byte) int {
	total := 0
	for _, userID := range participantIDs {
		total += r.Deliver(userID, excludeConnID, messageType, payload)
	}
	return total
}
