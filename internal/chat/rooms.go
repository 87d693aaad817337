package chat

import (
	"strconv"
	"sync"
)

const roomPrefix = "item-"

// RoomName returns the room key for an item.
func RoomName(itemID int64) string {
	return roomPrefix + strconv.FormatInt(itemID, 10)
}

// Rooms tracks attached connections and their room memberships.
// Membership is in-memory only and is dropped when a connection detaches.
type Rooms struct {
	mu      sync.RWMutex
	members map[string]map[*Conn]struct{}
	conns   map[*Conn]map[string]struct{}
}

func NewRooms() *Rooms {
	return &Rooms{
		members: make(map[string]map[*Conn]struct{}),
		conns:   make(map[*Conn]map[string]struct{}),
	}
}

// Add registers a connection with no memberships.
func (r *Rooms) Add(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[c]; !ok {
		r.conns[c] = make(map[string]struct{})
	}
}

// Remove drops a connection and every membership it holds. It reports
// whether the connection was registered.
func (r *Rooms) Remove(c *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	joined, ok := r.conns[c]
	if !ok {
		return false
	}
	for room := range joined {
		r.leaveLocked(room, c)
	}
	delete(r.conns, c)
	return true
}

// Join is idempotent. Joining with an unregistered connection is a no-op.
func (r *Rooms) Join(room string, c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	joined, ok := r.conns[c]
	if !ok {
		return
	}
	set, ok := r.members[room]
	if !ok {
		set = make(map[*Conn]struct{})
		r.members[room] = set
	}
	set[c] = struct{}{}
	joined[room] = struct{}{}
}

// Leave is idempotent.
func (r *Rooms) Leave(room string, c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(room, c)
}

func (r *Rooms) leaveLocked(room string, c *Conn) {
	if set, ok := r.members[room]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(r.members, room)
		}
	}
	if joined, ok := r.conns[c]; ok {
		delete(joined, room)
	}
}

// Members returns a snapshot of the connections joined to room.
func (r *Rooms) Members(room string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.members[room]
	out := make([]*Conn, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

// All returns a snapshot of every registered connection.
func (r *Rooms) All() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Conn, 0, len(r.conns))
	for c := range r.conns {
		out = append(out, c)
	}
	return out
}

// Joined returns the rooms c belongs to.
func (r *Rooms) Joined(c *Conn) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.conns[c]))
	for room := range r.conns[c] {
		out = append(out, room)
	}
	return out
}

// Len returns the number of registered connections.
func (r *Rooms) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
