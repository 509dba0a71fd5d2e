// Package rooms provides named broadcast scopes for gateway connections.
//
// A room is transient: membership exists only while a connection is joined
// and nothing is persisted. Clients must re-join conversation rooms after a
// reconnect. Each user's personal mailbox room is the exception — the
// gateway joins it on their behalf at connect time.
package rooms

// User returns the mailbox room name for a user. Mailbox rooms receive
// notifications regardless of conversation-room membership.
func User(userID string) string { return "user:" + userID }

// Conversation returns the room name scoped to one conversation.
func Conversation(conversationID string) string { return "conversation:" + conversationID }

// Event is one outbound real-time event. Durable marks events whose loss
// degrades the client more than a stale indicator would (message:new); the
// delivery queue applies a stricter overflow policy to those.
type Event struct {
	Name    string
	Payload any
	Durable bool
}

// Sender delivers events to a single connection. Send must not block the
// broadcaster: implementations enqueue into a bounded per-connection queue
// and report false when the event was dropped.
type Sender interface {
	ID() string
	Send(ev Event) bool
}
