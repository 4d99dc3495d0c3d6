package protocol

import (
	"encoding/json"
	"time"
)

// MessageType enumerates all signaling message types.
type MessageType string

const (
	MsgPresence     MessageType = "presence"
	MsgIncomingCall MessageType = "incoming_call"
	MsgCallEnded    MessageType = "call_ended"
	MsgEmergency    MessageType = "emergency"
)

// Envelope is the outer JSON wrapper for all signaling messages.
type Envelope struct {
	ID      string          `json:"id"`
	Type    MessageType     `json:"type"`
	From    string          `json:"from"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// PresencePayload is published periodically while a companion is online.
type PresencePayload struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// IncomingCallPayload announces a call to the recipient's topic.
type IncomingCallPayload struct {
	CallID   string `json:"call_id"`
	FromUser string `json:"from_user"`
	FromName string `json:"from_name,omitempty"`
}

// CallEndedPayload tells the peer the call is over.
type CallEndedPayload struct {
	CallID          string `json:"call_id"`
	Reason          string `json:"reason,omitempty"`
	DurationSeconds int    `json:"duration_seconds"`
}

// EmergencyPayload carries a confirmed emergency alert.
type EmergencyPayload struct {
	UserID     string    `json:"user_id"`
	Note       string    `json:"note"`
	Keyword    string    `json:"keyword,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
