package presence

import (
	"fmt"
	"sync"
	"testing"
)

func TestRegisterFirstConnectionComesOnline(t *testing.T) {
	r := NewRegistry()

	if !r.Register("c1", "alice") {
		t.Fatalf("first connection should report came online")
	}
	if r.Register("c2", "alice") {
		t.Fatalf("second connection should not report came online")
	}
	if !r.IsOnline("alice") {
		t.Fatalf("alice should be online")
	}
	if got := len(r.ConnectionsFor("alice")); got != 2 {
		t.Fatalf("connections = %d, want 2", got)
	}
}

func TestRegisterIdempotent(t *testing.T) {
	r := NewRegistry()
	r.Register("c1", "alice")

	// Re-registering the same connection, even for another user, is a no-op.
	if r.Register("c1", "bob") {
		t.Fatalf("duplicate connection id should not register")
	}
	if user, _ := r.UserFor("c1"); user != "alice" {
		t.Fatalf("UserFor(c1) = %q, want alice", user)
	}
	if r.IsOnline("bob") {
		t.Fatalf("bob should not be online")
	}
}

func TestUnregisterLastConnectionGoesOffline(t *testing.T) {
	r := NewRegistry()
	r.Register("c1", "alice")
	r.Register("c2", "alice")

	user, wentOffline, ok := r.Unregister("c1")
	if !ok || user != "alice" {
		t.Fatalf("Unregister(c1) = (%q, %v, %v)", user, wentOffline, ok)
	}
	if wentOffline {
		t.Fatalf("alice went offline with a connection remaining")
	}

	user, wentOffline, ok = r.Unregister("c2")
	if !ok || user != "alice" || !wentOffline {
		t.Fatalf("Unregister(c2) = (%q, %v, %v), want (alice, true, true)", user, wentOffline, ok)
	}
	if r.IsOnline("alice") {
		t.Fatalf("alice still online after last disconnect")
	}
}

func TestUnregisterUnknownConnection(t *testing.T) {
	r := NewRegistry()
	if _, _, ok := r.Unregister("ghost"); ok {
		t.Fatalf("unregistering an unknown connection should report ok=false")
	}
}

func TestOnlineUsers(t *testing.T) {
	r := NewRegistry()
	r.Register("c1", "alice")
	r.Register("c2", "bob")
	r.Register("c3", "bob")

	users := r.OnlineUsers()
	if len(users) != 2 {
		t.Fatalf("online users = %v, want 2 entries", users)
	}
	if r.ConnectionCount() != 3 {
		t.Fatalf("connection count = %d, want 3", r.ConnectionCount())
	}
}

func TestConcurrentRegisterUnregister(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			connID := fmt.Sprintf("conn-%d", i)
			userID := fmt.Sprintf("user-%d", i%5)
			r.Register(connID, userID)
			r.IsOnline(userID)
			r.Unregister(connID)
		}(i)
	}
	wg.Wait()

	if r.ConnectionCount() != 0 {
		t.Fatalf("connection count = %d after drain, want 0", r.ConnectionCount())
	}
	if got := len(r.OnlineUsers()); got != 0 {
		t.Fatalf("online users = %d after drain, want 0", got)
	}
}
