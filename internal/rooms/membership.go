package rooms

import "sync"

// Membership tracks which connections are joined to which rooms and fans
// events out to them. Safe for concurrent use; a broadcast observes a
// consistent snapshot of the room taken under the read lock.
type Membership struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]Sender   // room -> connection id -> sender
	joined map[string]map[string]struct{} // connection id -> set of rooms
}

// NewMembership creates an empty membership index.
func NewMembership() *Membership {
	return &Membership{
		rooms:  map[string]map[string]Sender{},
		joined: map[string]map[string]struct{}{},
	}
}

// Join adds a connection to a room. Joining a room twice is a no-op.
func (m *Membership) Join(room string, s Sender) {
	m.mu.Lock()
	defer m.mu.Unlock()

	members, ok := m.rooms[room]
	if !ok {
		members = map[string]Sender{}
		m.rooms[room] = members
	}
	members[s.ID()] = s

	set, ok := m.joined[s.ID()]
	if !ok {
		set = map[string]struct{}{}
		m.joined[s.ID()] = set
	}
	set[room] = struct{}{}
}

// Leave removes a connection from a room. Empty rooms are deleted.
func (m *Membership) Leave(room, connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaveLocked(room, connID)
}

// LeaveAll removes a connection from every room it joined. Called on
// disconnect so dead connections never linger in membership sets.
func (m *Membership) LeaveAll(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for room := range m.joined[connID] {
		m.leaveLocked(room, connID)
	}
}

func (m *Membership) leaveLocked(room, connID string) {
	if members, ok := m.rooms[room]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(m.rooms, room)
		}
	}
	if set, ok := m.joined[connID]; ok {
		delete(set, room)
		if len(set) == 0 {
			delete(m.joined, connID)
		}
	}
}

// Broadcast delivers an event to every connection joined to the room, except
// the optional excluded connection. It returns the number of connections the
// event was enqueued for; zero targets is normal operation, not a fault.
func (m *Membership) Broadcast(room string, ev Event, excludeConnID string) int {
	m.mu.RLock()
	targets := make([]Sender, 0, len(m.rooms[room]))
	for id, s := range m.rooms[room] {
		if id == excludeConnID {
			continue
		}
		targets = append(targets, s)
	}
	m.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if s.Send(ev) {
			delivered++
		}
	}
	return delivered
}

// Members returns the connection ids currently joined to a room.
func (m *Membership) Members(room string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.rooms[room]))
	for id := range m.rooms[room] {
		ids = append(ids, id)
	}
	return ids
}

// Rooms returns the rooms a connection has joined.
func (m *Membership) Rooms(connID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.joined[connID]))
	for room := range m.joined[connID] {
		out = append(out, room)
	}
	return out
}
