// Package presence tracks which users are online and through which
// connections. A user with multiple devices has multiple connections; the
// user counts as online while at least one remains.
//
// The registry is a pure in-memory index. It is rebuilt from zero after a
// restart as clients reconnect, so callers must tolerate transiently stale
// "offline" reads after a deploy.
package presence

import "sync"

// Registry maps connections to users and users to their active connections.
// Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byConn map[string]string              // connection id -> user id
	byUser map[string]map[string]struct{} // user id -> set of connection ids
}

// NewRegistry creates an empty presence registry.
func NewRegistry() *Registry {
	return &Registry{
		byConn: map[string]string{},
		byUser: map[string]map[string]struct{}{},
	}
}

// Register records a connection for a user. Registering the same connection
// id twice is a no-op, even for a different user; the first owner wins.
// It returns true when this is the user's first connection, i.e. the user
// just came online.
func (r *Registry) Register(connID, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byConn[connID]; exists {
		return false
	}
	r.byConn[connID] = userID

	conns, ok := r.byUser[userID]
	if !ok {
		conns = map[string]struct{}{}
		r.byUser[userID] = conns
	}
	conns[connID] = struct{}{}
	return len(conns) == 1
}

// Unregister removes a connection. It returns the owning user id and whether
// that user went offline (the removed connection was their last). ok is false
// when the connection was never registered.
func (r *Registry) Unregister(connID string) (userID string, wentOffline, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok = r.byConn[connID]
	if !ok {
		return "", false, false
	}
	delete(r.byConn, connID)

	conns := r.byUser[userID]
	delete(conns, connID)
	if len(conns) == 0 {
		delete(r.byUser, userID)
		wentOffline = true
	}
	return userID, wentOffline, true
}

// UserFor returns the user owning a connection, if registered.
func (r *Registry) UserFor(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.byConn[connID]
	return userID, ok
}

// IsOnline reports whether the user has at least one active connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// ConnectionsFor returns the ids of the user's active connections. The result
// is a copy and may be empty.
func (r *Registry) ConnectionsFor(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]string, 0, len(r.byUser[userID]))
	for id := range r.byUser[userID] {
		conns = append(conns, id)
	}
	return conns
}

// OnlineUsers returns the ids of all users with at least one connection.
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]string, 0, len(r.byUser))
	for id := range r.byUser {
		users = append(users, id)
	}
	return users
}

// ConnectionCount returns the total number of registered connections.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}
