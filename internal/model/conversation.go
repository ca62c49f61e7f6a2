package model

import (
	"time"
)

// ConversationStatus is the engine-side state of a conversation. A
// conversation without a stored position has not started.
type ConversationStatus string

const (
	StatusAwaitingReply ConversationStatus = "awaiting_reply"
	StatusTransferred   ConversationStatus = "transferred"
)

// Position records where a conversation stands in the active flow.
type Position struct {
	ConversationID string             `json:"conversation_id"`
	NodeID         string             `json:"node_id"`
	AwaitingInput  bool               `json:"awaiting_input,omitempty"`
	Status         ConversationStatus `json:"status"`
	UpdatedAt      time.Time          `json:"updated_at"`
}
