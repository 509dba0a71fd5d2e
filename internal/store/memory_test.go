package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/havensocial/haven/pkg/models"
)

func newConversation(t *testing.T, ms *MemoryMessageStore, creator string, others ...string) *models.Conversation {
	t.Helper()
	conv, err := ms.CreateConversation(context.Background(), creator, others, "")
	if err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}
	return conv
}

func TestCreateMessageRequiresParticipant(t *testing.T) {
	ms := NewMemoryMessageStore()
	conv := newConversation(t, ms, "alice", "bob")

	_, err := ms.CreateMessage(context.Background(), "mallory", conv.ID, MessagePayload{Type: models.MessageText, Content: "hi"})
	if !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("CreateMessage() error = %v, want ErrNotParticipant", err)
	}

	_, err = ms.CreateMessage(context.Background(), "alice", "missing", MessagePayload{Type: models.MessageText})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("CreateMessage() on missing conversation error = %v, want ErrNotFound", err)
	}
}

func TestCreateMessageUpdatesConversation(t *testing.T) {
	ms := NewMemoryMessageStore()
	conv := newConversation(t, ms, "alice", "bob", "carol")

	msg, err := ms.CreateMessage(context.Background(), "alice", conv.ID, MessagePayload{Type: models.MessageText, Content: "hello"})
	if err != nil {
		t.Fatalf("CreateMessage() error = %v", err)
	}
	if msg.ID == "" || msg.SenderID != "alice" {
		t.Fatalf("unexpected message %+v", msg)
	}

	loaded, err := ms.GetConversation(context.Background(), "bob", conv.ID)
	if err != nil {
		t.Fatalf("GetConversation() error = %v", err)
	}
	if loaded.LastMessageText != "hello" || loaded.LastMessageAt == nil {
		t.Fatalf("last message not tracked: %+v", loaded)
	}
	if loaded.UnreadCounts["bob"] != 1 || loaded.UnreadCounts["carol"] != 1 {
		t.Fatalf("unread counts = %v, want 1 for bob and carol", loaded.UnreadCounts)
	}
	if loaded.UnreadCounts["alice"] != 0 {
		t.Fatalf("sender unread count = %d, want 0", loaded.UnreadCounts["alice"])
	}

	// Non-text messages use a type placeholder preview.
	if _, err := ms.CreateMessage(context.Background(), "bob", conv.ID, MessagePayload{Type: models.MessageImage}); err != nil {
		t.Fatalf("CreateMessage() error = %v", err)
	}
	loaded, _ = ms.GetConversation(context.Background(), "alice", conv.ID)
	if loaded.LastMessageText != "[image]" {
		t.Fatalf("LastMessageText = %q, want [image]", loaded.LastMessageText)
	}
}

func TestDirectConversationDeduplicated(t *testing.T) {
	ms := NewMemoryMessageStore()
	first := newConversation(t, ms, "alice", "bob")
	second := newConversation(t, ms, "bob", "alice")
	if first.ID != second.ID {
		t.Fatalf("direct conversation duplicated: %s vs %s", first.ID, second.ID)
	}
}

func TestMarkReadResetsUnread(t *testing.T) {
	ms := NewMemoryMessageStore()
	conv := newConversation(t, ms, "alice", "bob")

	msg, _ := ms.CreateMessage(context.Background(), "alice", conv.ID, MessagePayload{Type: models.MessageText, Content: "hi"})

	if err := ms.MarkRead(context.Background(), "bob", conv.ID, []string{msg.ID}); err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}

	loaded, _ := ms.GetConversation(context.Background(), "bob", conv.ID)
	if loaded.UnreadCounts["bob"] != 0 {
		t.Fatalf("unread count after MarkRead = %d, want 0", loaded.UnreadCounts["bob"])
	}

	history, err := ms.History(context.Background(), "bob", conv.ID, 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 1 || len(history[0].ReadBy) != 1 || history[0].ReadBy[0].UserID != "bob" {
		t.Fatalf("read receipt missing: %+v", history[0])
	}

	// Marking again must not duplicate the receipt.
	if err := ms.MarkRead(context.Background(), "bob", conv.ID, []string{msg.ID}); err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}
	history, _ = ms.History(context.Background(), "bob", conv.ID, 10)
	if len(history[0].ReadBy) != 1 {
		t.Fatalf("duplicate read receipts: %+v", history[0].ReadBy)
	}
}

func TestReactionsAddRemove(t *testing.T) {
	ms := NewMemoryMessageStore()
	conv := newConversation(t, ms, "alice", "bob")
	msg, _ := ms.CreateMessage(context.Background(), "alice", conv.ID, MessagePayload{Type: models.MessageText, Content: "hi"})

	updated, err := ms.AddReaction(context.Background(), "bob", msg.ID, "❤️")
	if err != nil {
		t.Fatalf("AddReaction() error = %v", err)
	}
	if updated.Reactions["bob"] != "❤️" {
		t.Fatalf("Reactions = %v", updated.Reactions)
	}

	updated, err = ms.RemoveReaction(context.Background(), "bob", msg.ID)
	if err != nil {
		t.Fatalf("RemoveReaction() error = %v", err)
	}
	if _, ok := updated.Reactions["bob"]; ok {
		t.Fatalf("reaction not removed: %v", updated.Reactions)
	}

	if _, err := ms.AddReaction(context.Background(), "bob", "missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("AddReaction() on missing message error = %v, want ErrNotFound", err)
	}
}

func TestHistoryLimitAndOrder(t *testing.T) {
	ms := NewMemoryMessageStore()
	conv := newConversation(t, ms, "alice", "bob")
	for _, text := range []string{"one", "two", "three"} {
		if _, err := ms.CreateMessage(context.Background(), "alice", conv.ID, MessagePayload{Type: models.MessageText, Content: text}); err != nil {
			t.Fatalf("CreateMessage() error = %v", err)
		}
	}

	history, err := ms.History(context.Background(), "bob", conv.ID, 2)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 || history[0].Content != "two" || history[1].Content != "three" {
		t.Fatalf("History() = %v, want the two newest messages oldest-first", history)
	}
}

func TestCallStatusTransitions(t *testing.T) {
	cs := NewMemoryCallStore()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	cs.now = func() time.Time { return clock }

	call, err := cs.Create(context.Background(), "alice", "bob", models.CallVideo)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if call.Status != models.CallInitiated {
		t.Fatalf("Status = %s, want initiated", call.Status)
	}

	clock = base.Add(5 * time.Second)
	answered, err := cs.UpdateStatus(context.Background(), call.ID, models.CallAnswered)
	if err != nil {
		t.Fatalf("UpdateStatus(answered) error = %v", err)
	}
	if answered.StartedAt == nil || !answered.StartedAt.Equal(clock) {
		t.Fatalf("StartedAt = %v, want %v", answered.StartedAt, clock)
	}

	clock = base.Add(65 * time.Second)
	ended, err := cs.UpdateStatus(context.Background(), call.ID, models.CallEnded)
	if err != nil {
		t.Fatalf("UpdateStatus(ended) error = %v", err)
	}
	if ended.Duration != 60 {
		t.Fatalf("Duration = %d, want 60", ended.Duration)
	}
	if ended.EndedAt == nil {
		t.Fatalf("EndedAt not set")
	}
}

func TestCallEndedWithoutAnswerHasNoDuration(t *testing.T) {
	cs := NewMemoryCallStore()
	call, _ := cs.Create(context.Background(), "alice", "bob", models.CallAudio)

	ended, err := cs.UpdateStatus(context.Background(), call.ID, models.CallEnded)
	if err != nil {
		t.Fatalf("UpdateStatus(ended) error = %v", err)
	}
	if ended.Duration != 0 {
		t.Fatalf("Duration = %d, want 0 for unanswered call", ended.Duration)
	}
	if ended.StartedAt != nil {
		t.Fatalf("StartedAt = %v, want nil", ended.StartedAt)
	}
}

func TestCallUpdateStatusNotFound(t *testing.T) {
	cs := NewMemoryCallStore()
	if _, err := cs.UpdateStatus(context.Background(), "missing", models.CallEnded); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateStatus() error = %v, want ErrNotFound", err)
	}
}

func TestCallHistoryAndMissedCount(t *testing.T) {
	cs := NewMemoryCallStore()
	c1, _ := cs.Create(context.Background(), "alice", "bob", models.CallAudio)
	cs.Create(context.Background(), "carol", "dave", models.CallVideo)
	c3, _ := cs.Create(context.Background(), "bob", "alice", models.CallVideo)

	cs.UpdateStatus(context.Background(), c1.ID, models.CallMissed)

	history, err := cs.HistoryFor(context.Background(), "alice", 10)
	if err != nil {
		t.Fatalf("HistoryFor() error = %v", err)
	}
	if len(history) != 2 || history[0].ID != c3.ID || history[1].ID != c1.ID {
		t.Fatalf("HistoryFor() = %v, want newest first for alice's calls", history)
	}

	missed, err := cs.MissedCount(context.Background(), "bob")
	if err != nil {
		t.Fatalf("MissedCount() error = %v", err)
	}
	if missed != 1 {
		t.Fatalf("MissedCount() = %d, want 1", missed)
	}
}
