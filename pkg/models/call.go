package models

import "time"

// CallType distinguishes audio-only calls from video calls.
type CallType string

const (
	CallAudio CallType = "audio"
	CallVideo CallType = "video"
)

// CallStatus tracks the lifecycle of a durable call record.
//
// Valid transitions: initiated -> ringing -> answered -> ended, with side
// exits initiated/ringing -> rejected | missed | failed.
type CallStatus string

const (
	CallInitiated CallStatus = "initiated"
	CallRinging   CallStatus = "ringing"
	CallAnswered  CallStatus = "answered"
	CallRejected  CallStatus = "rejected"
	CallMissed    CallStatus = "missed"
	CallEnded     CallStatus = "ended"
	CallFailed    CallStatus = "failed"
)

// Terminal reports whether the status ends the call lifecycle.
func (s CallStatus) Terminal() bool {
	switch s {
	case CallRejected, CallMissed, CallEnded, CallFailed:
		return true
	}
	return false
}

// Call is the durable call history record, the system of record for a call.
// The gateway keeps a transient signaling session alongside it; the record
// outlives the session.
type Call struct {
	ID             string     `json:"id"`
	CallerID       string     `json:"callerId"`
	CalleeID       string     `json:"calleeId"`
	Type           CallType   `json:"callType"`
	Status         CallStatus `json:"status"`
	ConversationID string     `json:"conversationId,omitempty"`
	StartedAt      *time.Time `json:"startedAt,omitempty"`
	EndedAt        *time.Time `json:"endedAt,omitempty"`
	Duration       int        `json:"duration"` // seconds, 0 until ended after answer
	CreatedAt      time.Time  `json:"createdAt"`
}
