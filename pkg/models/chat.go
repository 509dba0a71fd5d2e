package models

import "time"

// MessageType classifies the content of a chat message.
type MessageType string

const (
	MessageText    MessageType = "text"
	MessageImage   MessageType = "image"
	MessageVideo   MessageType = "video"
	MessageVoice   MessageType = "voice"
	MessagePost    MessageType = "post"
	MessageReel    MessageType = "reel"
	MessageStory   MessageType = "story"
	MessageProfile MessageType = "profile"
)

// ConversationType distinguishes one-to-one threads from group threads.
type ConversationType string

const (
	ConversationDirect ConversationType = "direct"
	ConversationGroup  ConversationType = "group"
)

// Message is a persisted chat message. The gateway never owns its lifecycle;
// it receives the persisted object from the message store and fans it out.
type Message struct {
	ID             string            `json:"id"`
	ConversationID string            `json:"conversationId"`
	SenderID       string            `json:"senderId"`
	Type           MessageType       `json:"type"`
	Content        string            `json:"content"`
	Attachments    []Attachment      `json:"attachments,omitempty"`
	ReplyToID      string            `json:"replyToId,omitempty"`
	Reactions      map[string]string `json:"reactions,omitempty"` // userID -> emoji
	ReadBy         []ReadReceipt     `json:"readBy,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// Attachment is a media reference carried inside a message.
type Attachment struct {
	Type        string `json:"type"` // image, video, voice, post, reel, story, profile
	URL         string `json:"url,omitempty"`
	Thumbnail   string `json:"thumbnail,omitempty"`
	Duration    int    `json:"duration,omitempty"`
	ReferenceID string `json:"referenceId,omitempty"` // for shared posts/reels/stories
}

// ReadReceipt records that a user has read a message.
type ReadReceipt struct {
	UserID string    `json:"userId"`
	ReadAt time.Time `json:"readAt"`
}

// Conversation is a persisted chat thread between two or more users.
type Conversation struct {
	ID              string           `json:"id"`
	Type            ConversationType `json:"type"`
	Participants    []string         `json:"participants"`
	LastMessageText string           `json:"lastMessageText,omitempty"`
	LastMessageAt   *time.Time       `json:"lastMessageAt,omitempty"`
	UnreadCounts    map[string]int   `json:"unreadCounts,omitempty"` // userID -> unread
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

// HasParticipant reports whether userID belongs to the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}
