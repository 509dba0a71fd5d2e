package gateway

import (
	"encoding/json"
	"time"

	"github.com/havensocial/haven/pkg/models"
)

// Outbound event names.
const (
	EventUserOnline     = "user:online"
	EventUserOffline    = "user:offline"
	EventMessageNew     = "message:new"
	EventTypingUpdate   = "typing:update"
	EventReadUpdate     = "message:read:update"
	EventReactionUpdate = "message:reaction:update"
	EventCallIncoming   = "call:incoming"
	EventCallAnswered   = "call:answered"
	EventCallRejected   = "call:rejected"
	EventCallEnded      = "call:ended"
	EventCallICE        = "call:ice-candidate"
	EventCallMedia      = "call:media-toggled"
	EventAuthError      = "auth_error"
)

// Inbound event names.
const (
	OpMessageSend       = "message:send"
	OpMessageHistory    = "message:history"
	OpTypingStart       = "typing:start"
	OpTypingStop        = "typing:stop"
	OpConversationJoin  = "conversation:join"
	OpConversationLeave = "conversation:leave"
	OpMessageRead       = "message:read"
	OpMessageReact      = "message:react"
	OpCallInitiate      = "call:initiate"
	OpCallAnswer        = "call:answer"
	OpCallReject        = "call:reject"
	OpCallEnd           = "call:end"
	OpCallICE           = "call:ice-candidate"
	OpCallToggleMedia   = "call:toggle-media"
	OpCallHistory       = "call:history"
	OpUsersGetOnline    = "users:get-online"
	OpPing              = "ping"
)

// request is one inbound client frame.
type request struct {
	ID    string          `json:"id,omitempty"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// frame is one outbound wire frame, either a broadcast event or an
// acknowledgement for a request.
type frame struct {
	Type    string `json:"type"` // "event" or "ack"
	ID      string `json:"id,omitempty"`
	Event   string `json:"event,omitempty"`
	Data    any    `json:"data,omitempty"`
	Success *bool  `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Outbound payloads. Field names are part of the client contract.

type userPresencePayload struct {
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

type messageNewPayload struct {
	Message        *models.Message `json:"message"`
	ConversationID string          `json:"conversationId"`
}

type typingUpdatePayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	IsTyping       bool   `json:"isTyping"`
}

type readUpdatePayload struct {
	ConversationID string    `json:"conversationId"`
	MessageIDs     []string  `json:"messageIds"`
	ReadBy         string    `json:"readBy"`
	ReadAt         time.Time `json:"readAt"`
}

type reactionUpdatePayload struct {
	MessageID string            `json:"messageId"`
	UserID    string            `json:"userId"`
	Emoji     string            `json:"emoji"`
	Reactions map[string]string `json:"reactions"`
}

type callIncomingPayload struct {
	CallID   string          `json:"callId"`
	From     string          `json:"from"`
	CallType models.CallType `json:"callType"`
	Signal   json.RawMessage `json:"signal"`
}

type callAnsweredPayload struct {
	CallID string          `json:"callId"`
	Signal json.RawMessage `json:"signal"`
	From   string          `json:"from"`
}

type callRejectedPayload struct {
	CallID string `json:"callId"`
	By     string `json:"by"`
}

type callEndedPayload struct {
	CallID string `json:"callId"`
}

type callICEPayload struct {
	CallID    string          `json:"callId"`
	Candidate json.RawMessage `json:"candidate"`
}

type callMediaPayload struct {
	CallID    string `json:"callId"`
	MediaType string `json:"mediaType"`
	Enabled   bool   `json:"enabled"`
}

// Inbound payloads.

type sendMessageParams struct {
	ConversationID string              `json:"conversationId"`
	Type           models.MessageType  `json:"type"`
	Content        string              `json:"content,omitempty"`
	Attachments    []models.Attachment `json:"attachments,omitempty"`
	ReplyToID      string              `json:"replyToId,omitempty"`
}

type historyParams struct {
	ConversationID string `json:"conversationId"`
	Limit          int    `json:"limit,omitempty"`
}

type typingParams struct {
	ConversationID string `json:"conversationId"`
}

type conversationParams struct {
	ConversationID string `json:"conversationId"`
}

type readParams struct {
	ConversationID string   `json:"conversationId"`
	MessageIDs     []string `json:"messageIds"`
}

type reactParams struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	Emoji          string `json:"emoji"`
}

type callInitiateParams struct {
	To       string          `json:"to"`
	CallType models.CallType `json:"callType"`
	Signal   json.RawMessage `json:"signal"`
}

type callAnswerParams struct {
	CallID string          `json:"callId"`
	Signal json.RawMessage `json:"signal"`
}

type callIDParams struct {
	CallID string `json:"callId"`
}

type callICEParams struct {
	CallID    string          `json:"callId"`
	To        string          `json:"to"`
	Candidate json.RawMessage `json:"candidate"`
}

type callMediaParams struct {
	CallID    string `json:"callId"`
	To        string `json:"to"`
	MediaType string `json:"mediaType"`
	Enabled   bool   `json:"enabled"`
}

type callHistoryParams struct {
	Limit int `json:"limit,omitempty"`
}
