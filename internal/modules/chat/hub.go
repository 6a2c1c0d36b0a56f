package chat

import "sync"

// Hub is the process-wide connection registry: roomId to connections and
// userId to connections. Rooms lock individually, so traffic in one room
// never blocks another.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]*room
	users map[string]map[*conn]struct{}
}

type room struct {
	mu      sync.Mutex
	conns   map[*conn]struct{}
	counter int64
}

func NewHub() *Hub {
	return &Hub{
		rooms: make(map[string]*room),
		users: make(map[string]map[*conn]struct{}),
	}
}

func (h *Hub) join(c *conn) {
	h.mu.Lock()
	r, ok := h.rooms[c.roomID]
	if !ok {
		r = &room{conns: make(map[*conn]struct{})}
		h.rooms[c.roomID] = r
	}
	if h.users[c.userID] == nil {
		h.users[c.userID] = make(map[*conn]struct{})
	}
	h.users[c.userID][c] = struct{}{}
	h.mu.Unlock()

	r.mu.Lock()
	r.conns[c] = struct{}{}
	r.mu.Unlock()
}

func (h *Hub) leave(c *conn) {
	h.mu.Lock()
	r := h.rooms[c.roomID]
	if set := h.users[c.userID]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.users, c.userID)
		}
	}
	h.mu.Unlock()
	if r == nil {
		return
	}

	r.mu.Lock()
	delete(r.conns, c)
	empty := len(r.conns) == 0
	r.mu.Unlock()

	// Empty rooms are dropped; the counter restarts, but sort keys lead
	// with the timestamp so ordering survives.
	if empty {
		h.mu.Lock()
		if r2 := h.rooms[c.roomID]; r2 == r {
			r.mu.Lock()
			if len(r.conns) == 0 {
				delete(h.rooms, c.roomID)
			}
			r.mu.Unlock()
		}
		h.mu.Unlock()
	}
}

// nextCounter hands out the per-room sequence number. The lock is released
// before any I/O.
func (h *Hub) nextCounter(roomID string) int64 {
	h.mu.RLock()
	r := h.rooms[roomID]
	h.mu.RUnlock()
	if r == nil {
		return 0
	}
	r.mu.Lock()
	r.counter++
	n := r.counter
	r.mu.Unlock()
	return n
}

// broadcast queues payload on every connection in the room, the sender
// included. Connections with a full send queue are closed rather than
// allowed to stall the room.
func (h *Hub) broadcast(roomID string, payload []byte) {
	h.mu.RLock()
	r := h.rooms[roomID]
	h.mu.RUnlock()
	if r == nil {
		return
	}

	r.mu.Lock()
	targets := make([]*conn, 0, len(r.conns))
	for c := range r.conns {
		targets = append(targets, c)
	}
	r.mu.Unlock()

	for _, c := range targets {
		c.trySend(payload)
	}
}

// RoomCount reports the number of live rooms, for diagnostics.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// ConnCount reports the number of live connections, for diagnostics.
func (h *Hub) ConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.users {
		n += len(set)
	}
	return n
}
