package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/havensocial/haven/pkg/models"
)

// MemoryMessageStore is an in-memory MessageStore for tests and local runs.
type MemoryMessageStore struct {
	mu            sync.RWMutex
	conversations map[string]*models.Conversation
	messages      map[string]*models.Message
	byConv        map[string][]string // conversation id -> message ids, insert order
}

// NewMemoryMessageStore creates an empty in-memory message store.
func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{
		conversations: map[string]*models.Conversation{},
		messages:      map[string]*models.Message{},
		byConv:        map[string][]string{},
	}
}

func (m *MemoryMessageStore) CreateConversation(ctx context.Context, creatorID string, participantIDs []string, convType models.ConversationType) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	participants := dedupe(append([]string{creatorID}, participantIDs...))
	if convType == "" {
		if len(participants) == 2 {
			convType = models.ConversationDirect
		} else {
			convType = models.ConversationGroup
		}
	}

	if convType == models.ConversationDirect && len(participants) == 2 {
		for _, conv := range m.conversations {
			if conv.Type == models.ConversationDirect && sameParticipants(conv.Participants, participants) {
				return cloneConversation(conv), nil
			}
		}
	}

	now := time.Now()
	conv := &models.Conversation{
		ID:           uuid.NewString(),
		Type:         convType,
		Participants: participants,
		UnreadCounts: map[string]int{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.conversations[conv.ID] = conv
	return cloneConversation(conv), nil
}

func (m *MemoryMessageStore) GetConversation(ctx context.Context, userID, conversationID string) (*models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conv, ok := m.conversations[conversationID]
	if !ok || !conv.HasParticipant(userID) {
		return nil, ErrNotFound
	}
	return cloneConversation(conv), nil
}

func (m *MemoryMessageStore) CreateMessage(ctx context.Context, senderID, conversationID string, payload MessagePayload) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[conversationID]
	if !ok {
		return nil, ErrNotFound
	}
	if !conv.HasParticipant(senderID) {
		return nil, ErrNotParticipant
	}

	now := time.Now()
	msg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Type:           payload.Type,
		Content:        payload.Content,
		Attachments:    payload.Attachments,
		ReplyToID:      payload.ReplyToID,
		Reactions:      map[string]string{},
		CreatedAt:      now,
	}
	m.messages[msg.ID] = msg
	m.byConv[conversationID] = append(m.byConv[conversationID], msg.ID)

	conv.LastMessageText = previewText(payload)
	conv.LastMessageAt = &now
	conv.UpdatedAt = now
	if conv.UnreadCounts == nil {
		conv.UnreadCounts = map[string]int{}
	}
	for _, p := range conv.Participants {
		if p != senderID {
			conv.UnreadCounts[p]++
		}
	}

	return cloneMessage(msg), nil
}

func (m *MemoryMessageStore) History(ctx context.Context, userID, conversationID string, limit int) ([]*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conv, ok := m.conversations[conversationID]
	if !ok || !conv.HasParticipant(userID) {
		return nil, ErrNotFound
	}

	ids := m.byConv[conversationID]
	if limit > 0 && len(ids) > limit {
		ids = ids[len(ids)-limit:]
	}
	out := make([]*models.Message, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneMessage(m.messages[id]))
	}
	return out, nil
}

func (m *MemoryMessageStore) MarkRead(ctx context.Context, userID, conversationID string, messageIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[conversationID]
	if !ok || !conv.HasParticipant(userID) {
		return ErrNotFound
	}

	now := time.Now()
	for _, id := range messageIDs {
		msg, ok := m.messages[id]
		if !ok || msg.ConversationID != conversationID || msg.SenderID == userID {
			continue
		}
		if !hasRead(msg.ReadBy, userID) {
			msg.ReadBy = append(msg.ReadBy, models.ReadReceipt{UserID: userID, ReadAt: now})
		}
	}

	if conv.UnreadCounts == nil {
		conv.UnreadCounts = map[string]int{}
	}
	conv.UnreadCounts[userID] = 0
	return nil
}

func (m *MemoryMessageStore) AddReaction(ctx context.Context, userID, messageID, emoji string) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.messages[messageID]
	if !ok {
		return nil, ErrNotFound
	}
	if msg.Reactions == nil {
		msg.Reactions = map[string]string{}
	}
	msg.Reactions[userID] = emoji
	return cloneMessage(msg), nil
}

func (m *MemoryMessageStore) RemoveReaction(ctx context.Context, userID, messageID string) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.messages[messageID]
	if !ok {
		return nil, ErrNotFound
	}
	delete(msg.Reactions, userID)
	return cloneMessage(msg), nil
}

// MemoryCallStore is an in-memory CallStore for tests and local runs.
type MemoryCallStore struct {
	mu    sync.RWMutex
	calls map[string]*models.Call
	order []string
	now   func() time.Time
}

// NewMemoryCallStore creates an empty in-memory call store.
func NewMemoryCallStore() *MemoryCallStore {
	return &MemoryCallStore{calls: map[string]*models.Call{}, now: time.Now}
}

func (m *MemoryCallStore) Create(ctx context.Context, callerID, calleeID string, callType models.CallType) (*models.Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := &models.Call{
		ID:        uuid.NewString(),
		CallerID:  callerID,
		CalleeID:  calleeID,
		Type:      callType,
		Status:    models.CallInitiated,
		CreatedAt: m.now(),
	}
	m.calls[call.ID] = call
	m.order = append(m.order, call.ID)
	return cloneCall(call), nil
}

func (m *MemoryCallStore) UpdateStatus(ctx context.Context, callID string, status models.CallStatus) (*models.Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	call, ok := m.calls[callID]
	if !ok {
		return nil, ErrNotFound
	}

	now := m.now()
	call.Status = status
	if status == models.CallAnswered && call.StartedAt == nil {
		started := now
		call.StartedAt = &started
	}
	if status == models.CallEnded && call.EndedAt == nil {
		ended := now
		call.EndedAt = &ended
		if call.StartedAt != nil {
			call.Duration = int(now.Sub(*call.StartedAt) / time.Second)
		}
	}
	return cloneCall(call), nil
}

func (m *MemoryCallStore) Get(ctx context.Context, callID string) (*models.Call, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	call, ok := m.calls[callID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneCall(call), nil
}

func (m *MemoryCallStore) HistoryFor(ctx context.Context, userID string, limit int) ([]*models.Call, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Call, 0)
	for i := len(m.order) - 1; i >= 0; i-- {
		call := m.calls[m.order[i]]
		if call.CallerID != userID && call.CalleeID != userID {
			continue
		}
		out = append(out, cloneCall(call))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryCallStore) MissedCount(ctx context.Context, userID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, call := range m.calls {
		if call.CalleeID == userID && call.Status == models.CallMissed {
			count++
		}
	}
	return count, nil
}

func dedupe(ids []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func sameParticipants(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func previewText(payload MessagePayload) string {
	if payload.Type == models.MessageText {
		return payload.Content
	}
	return "[" + string(payload.Type) + "]"
}

func hasRead(receipts []models.ReadReceipt, userID string) bool {
	for _, r := range receipts {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

func cloneConversation(c *models.Conversation) *models.Conversation {
	clone := *c
	clone.Participants = append([]string(nil), c.Participants...)
	if c.UnreadCounts != nil {
		clone.UnreadCounts = make(map[string]int, len(c.UnreadCounts))
		for k, v := range c.UnreadCounts {
			clone.UnreadCounts[k] = v
		}
	}
	if c.LastMessageAt != nil {
		at := *c.LastMessageAt
		clone.LastMessageAt = &at
	}
	return &clone
}

func cloneMessage(msg *models.Message) *models.Message {
	clone := *msg
	clone.Attachments = append([]models.Attachment(nil), msg.Attachments...)
	clone.ReadBy = append([]models.ReadReceipt(nil), msg.ReadBy...)
	if msg.Reactions != nil {
		clone.Reactions = make(map[string]string, len(msg.Reactions))
		for k, v := range msg.Reactions {
			clone.Reactions[k] = v
		}
	}
	return &clone
}

func cloneCall(c *models.Call) *models.Call {
	clone := *c
	if c.StartedAt != nil {
		at := *c.StartedAt
		clone.StartedAt = &at
	}
	if c.EndedAt != nil {
		at := *c.EndedAt
		clone.EndedAt = &at
	}
	return &clone
}
