// Package store defines the durable collaborators the gateway depends on:
// the message store (conversations, messages, read receipts, reactions) and
// the call store (call history records). The gateway treats both as the
// system of record; everything it keeps in memory is a rebuildable cache.
package store

import (
	"context"
	"errors"

	"github.com/havensocial/haven/pkg/models"
)

var (
	// ErrNotFound is returned when a referenced entity does not exist or is
	// not visible to the requesting user.
	ErrNotFound = errors.New("not found")

	// ErrNotParticipant is returned when a sender is not a member of the
	// conversation they are writing to.
	ErrNotParticipant = errors.New("not a conversation participant")
)

// MessagePayload carries the client-supplied fields of a new message.
type MessagePayload struct {
	Type        models.MessageType  `json:"type"`
	Content     string              `json:"content,omitempty"`
	Attachments []models.Attachment `json:"attachments,omitempty"`
	ReplyToID   string              `json:"replyToId,omitempty"`
}

// MessageStore persists conversations and their messages.
type MessageStore interface {
	// CreateConversation starts a conversation between the creator and the
	// given participants. Direct conversations between the same two users
	// are deduplicated.
	CreateConversation(ctx context.Context, creatorID string, participantIDs []string, convType models.ConversationType) (*models.Conversation, error)

	// GetConversation loads a conversation the user participates in.
	// Returns ErrNotFound when it does not exist or the user is not a
	// participant.
	GetConversation(ctx context.Context, userID, conversationID string) (*models.Conversation, error)

	// CreateMessage validates that the sender participates in the
	// conversation, persists the message, and updates the conversation's
	// last-message fields and per-recipient unread counts.
	// Returns ErrNotParticipant when the sender is not a member.
	CreateMessage(ctx context.Context, senderID, conversationID string, payload MessagePayload) (*models.Message, error)

	// History returns up to limit messages of a conversation, oldest first.
	History(ctx context.Context, userID, conversationID string, limit int) ([]*models.Message, error)

	// MarkRead records read receipts for the given messages and resets the
	// reader's unread count for the conversation.
	MarkRead(ctx context.Context, userID, conversationID string, messageIDs []string) error

	// AddReaction sets the user's reaction on a message and returns the
	// updated message.
	AddReaction(ctx context.Context, userID, messageID, emoji string) (*models.Message, error)

	// RemoveReaction clears the user's reaction on a message and returns the
	// updated message.
	RemoveReaction(ctx context.Context, userID, messageID string) (*models.Message, error)
}

// CallStore persists durable call records.
type CallStore interface {
	// Create inserts a call record in status initiated.
	Create(ctx context.Context, callerID, calleeID string, callType models.CallType) (*models.Call, error)

	// UpdateStatus transitions a call record. Moving to answered sets
	// StartedAt when unset; moving to ended sets EndedAt and computes
	// Duration only when the call had been answered.
	UpdateStatus(ctx context.Context, callID string, status models.CallStatus) (*models.Call, error)

	// Get loads a call record by id.
	Get(ctx context.Context, callID string) (*models.Call, error)

	// HistoryFor returns the user's calls, newest first.
	HistoryFor(ctx context.Context, userID string, limit int) ([]*models.Call, error)

	// MissedCount returns how many calls the user missed.
	MissedCount(ctx context.Context, userID string) (int, error)
}
