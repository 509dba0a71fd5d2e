package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/havensocial/haven/internal/rooms"
	"github.com/havensocial/haven/internal/store"
	"github.com/havensocial/haven/pkg/models"
)

const defaultHistoryLimit = 50

// handleMessageSend persists the message, then fans it out once to every
// participant's mailbox room. Delivery targets come from the stored
// conversation, not from who happens to be in the conversation room, so
// participants receive messages without an explicit join.
func (g *Gateway) handleMessageSend(ctx context.Context, c *conn, data json.RawMessage) (any, error) {
	params, err := decode[sendMessageParams](data)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	msg, err := g.messages.CreateMessage(ctx, c.userID, params.ConversationID, store.MessagePayload{
		Type:        params.Type,
		Content:     params.Content,
		Attachments: params.Attachments,
		ReplyToID:   params.ReplyToID,
	})
	g.metrics.StoreDuration.WithLabelValues("message", "create").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	conv, err := g.messages.GetConversation(ctx, c.userID, params.ConversationID)
	if err != nil {
		// The message is persisted; delivery degrades to the sender's ack.
		g.logger.Warn("conversation lookup failed after send",
			"conversation_id", params.ConversationID, "error", err)
		return map[string]any{"message": msg}, nil
	}

	ev := rooms.Event{
		Name:    EventMessageNew,
		Payload: messageNewPayload{Message: msg, ConversationID: conv.ID},
		Durable: true,
	}
	for _, participantID := range conv.Participants {
		g.rooms.Broadcast(rooms.User(participantID), ev, c.id)
	}

	return map[string]any{"message": msg}, nil
}

func (g *Gateway) handleMessageHistory(ctx context.Context, c *conn, data json.RawMessage) (any, error) {
	params, err := decode[historyParams](data)
	if err != nil {
		return nil, err
	}
	if params.Limit <= 0 {
		params.Limit = defaultHistoryLimit
	}

	msgs, err := g.messages.History(ctx, c.userID, params.ConversationID, params.Limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{"messages": msgs}, nil
}

// handleTyping relays a typing indicator to the conversation room. Typing is
// ephemeral: nothing is persisted and delivery is best-effort, so only
// clients that joined the conversation room see it.
func (g *Gateway) handleTyping(c *conn, data json.RawMessage, isTyping bool) (any, error) {
	params, err := decode[typingParams](data)
	if err != nil {
		return nil, err
	}

	g.rooms.Broadcast(rooms.Conversation(params.ConversationID), rooms.Event{
		Name: EventTypingUpdate,
		Payload: typingUpdatePayload{
			ConversationID: params.ConversationID,
			UserID:         c.userID,
			IsTyping:       isTyping,
		},
	}, c.id)

	return nil, nil
}

// handleConversationJoin subscribes the connection to a conversation's
// ephemeral events after confirming the user participates in it. Room
// membership is per connection and lost on disconnect.
func (g *Gateway) handleConversationJoin(ctx context.Context, c *conn, data json.RawMessage) (any, error) {
	params, err := decode[conversationParams](data)
	if err != nil {
		return nil, err
	}

	conv, err := g.messages.GetConversation(ctx, c.userID, params.ConversationID)
	if err != nil {
		return nil, err
	}

	g.rooms.Join(rooms.Conversation(conv.ID), c)
	return map[string]any{"conversation": conv}, nil
}

func (g *Gateway) handleConversationLeave(c *conn, data json.RawMessage) (any, error) {
	params, err := decode[conversationParams](data)
	if err != nil {
		return nil, err
	}
	g.rooms.Leave(rooms.Conversation(params.ConversationID), c.id)
	return nil, nil
}

// handleMessageRead broadcasts the read receipt to the conversation room
// first, then persists it. The live update is independent of the write: peers
// see the receipt even when the store is briefly unavailable, and the ack
// carries the persistence outcome.
func (g *Gateway) handleMessageRead(ctx context.Context, c *conn, data json.RawMessage) (any, error) {
	params, err := decode[readParams](data)
	if err != nil {
		return nil, err
	}

	g.rooms.Broadcast(rooms.Conversation(params.ConversationID), rooms.Event{
		Name: EventReadUpdate,
		Payload: readUpdatePayload{
			ConversationID: params.ConversationID,
			MessageIDs:     params.MessageIDs,
			ReadBy:         c.userID,
			ReadAt:         time.Now(),
		},
	}, c.id)

	start := time.Now()
	err = g.messages.MarkRead(ctx, c.userID, params.ConversationID, params.MessageIDs)
	g.metrics.StoreDuration.WithLabelValues("message", "mark_read").Observe(time.Since(start).Seconds())
	return nil, err
}

// handleMessageReact sets or clears the user's reaction. An empty emoji
// clears it. The broadcast goes out even when the write fails, falling back
// to the requester's view of the reaction; the ack reflects the write.
func (g *Gateway) handleMessageReact(ctx context.Context, c *conn, data json.RawMessage) (any, error) {
	params, err := decode[reactParams](data)
	if err != nil {
		return nil, err
	}

	var msg *models.Message
	var storeErr error
	if params.Emoji == "" {
		msg, storeErr = g.messages.RemoveReaction(ctx, c.userID, params.MessageID)
	} else {
		msg, storeErr = g.messages.AddReaction(ctx, c.userID, params.MessageID, params.Emoji)
	}

	reactions := map[string]string{}
	switch {
	case storeErr == nil && msg.Reactions != nil:
		reactions = msg.Reactions
	case storeErr != nil && params.Emoji != "":
		reactions[c.userID] = params.Emoji
	}

	g.rooms.Broadcast(rooms.Conversation(params.ConversationID), rooms.Event{
		Name: EventReactionUpdate,
		Payload: reactionUpdatePayload{
			MessageID: params.MessageID,
			UserID:    c.userID,
			Emoji:     params.Emoji,
			Reactions: reactions,
		},
	}, c.id)

	if storeErr != nil {
		return nil, storeErr
	}
	return map[string]any{"reactions": reactions}, nil
}
