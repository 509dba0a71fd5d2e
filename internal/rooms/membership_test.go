package rooms

import (
	"fmt"
	"sort"
	"sync"
	"testing"
)

// fakeSender records events delivered to one connection.
type fakeSender struct {
	id     string
	mu     sync.Mutex
	events []Event
}

func (f *fakeSender) ID() string { return f.id }

func (f *fakeSender) Send(ev Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return true
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func TestBroadcastExcludesSender(t *testing.T) {
	m := NewMembership()
	a := &fakeSender{id: "a"}
	b := &fakeSender{id: "b"}
	c := &fakeSender{id: "c"}
	room := Conversation("conv1")
	m.Join(room, a)
	m.Join(room, b)
	m.Join(room, c)

	n := m.Broadcast(room, Event{Name: "typing:update"}, "a")
	if n != 2 {
		t.Fatalf("Broadcast() delivered to %d connections, want 2", n)
	}
	if a.count() != 0 {
		t.Fatalf("excluded sender received %d events", a.count())
	}
	if b.count() != 1 || c.count() != 1 {
		t.Fatalf("expected one event each for b and c, got %d and %d", b.count(), c.count())
	}
}

func TestBroadcastEmptyRoom(t *testing.T) {
	m := NewMembership()
	if n := m.Broadcast(User("nobody"), Event{Name: "message:new"}, ""); n != 0 {
		t.Fatalf("Broadcast() to empty room delivered %d, want 0", n)
	}
}

func TestLeaveAllRemovesEverywhere(t *testing.T) {
	m := NewMembership()
	s := &fakeSender{id: "conn1"}
	m.Join(User("alice"), s)
	m.Join(Conversation("c1"), s)
	m.Join(Conversation("c2"), s)

	if got := len(m.Rooms("conn1")); got != 3 {
		t.Fatalf("Rooms() = %d rooms, want 3", got)
	}

	m.LeaveAll("conn1")
	if got := len(m.Rooms("conn1")); got != 0 {
		t.Fatalf("Rooms() after LeaveAll = %d rooms, want 0", got)
	}
	for _, room := range []string{User("alice"), Conversation("c1"), Conversation("c2")} {
		if members := m.Members(room); len(members) != 0 {
			t.Fatalf("room %s still has members %v", room, members)
		}
	}
}

func TestJoinIdempotent(t *testing.T) {
	m := NewMembership()
	s := &fakeSender{id: "conn1"}
	room := Conversation("c1")
	m.Join(room, s)
	m.Join(room, s)

	if members := m.Members(room); len(members) != 1 {
		t.Fatalf("Members() = %v, want a single entry", members)
	}
	m.Broadcast(room, Event{Name: "message:new"}, "")
	if s.count() != 1 {
		t.Fatalf("double join caused %d deliveries, want 1", s.count())
	}
}

// Final membership must equal the serialized application of all join/leave
// calls regardless of interleaving with broadcasts.
func TestConcurrentJoinLeaveBroadcast(t *testing.T) {
	t.Parallel()
	m := NewMembership()
	room := Conversation("busy")

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := &fakeSender{id: fmt.Sprintf("conn%d", i)}
			m.Join(room, s)
			m.Broadcast(room, Event{Name: "typing:update"}, s.ID())
			if i%2 == 0 {
				m.Leave(room, s.ID())
			}
		}(i)
	}
	wg.Wait()

	members := m.Members(room)
	sort.Strings(members)
	want := make([]string, 0, 20)
	for i := 1; i < 40; i += 2 {
		want = append(want, fmt.Sprintf("conn%d", i))
	}
	sort.Strings(want)
	if len(members) != len(want) {
		t.Fatalf("Members() = %d connections, want %d", len(members), len(want))
	}
	for i := range want {
		if members[i] != want[i] {
			t.Fatalf("Members() = %v, want %v", members, want)
		}
	}
}

func TestRoomNames(t *testing.T) {
	if got := User("42"); got != "user:42" {
		t.Errorf("User(42) = %q", got)
	}
	if got := Conversation("42"); got != "conversation:42" {
		t.Errorf("Conversation(42) = %q", got)
	}
}
