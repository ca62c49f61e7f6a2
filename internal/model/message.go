package model

import (
	"time"
)

// SenderType identifies who authored a conversation message.
type SenderType string

const (
	SenderCustomer SenderType = "customer"
	SenderBot      SenderType = "bot"
	SenderAgent    SenderType = "agent"
	SenderSystem   SenderType = "system"
)

// ContentType describes how message content should be rendered.
type ContentType string

const (
	ContentText ContentType = "text"
	ContentMenu ContentType = "menu"
)

// Message is one entry of a conversation history.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	SenderType     SenderType  `json:"sender_type"`
	Content        string      `json:"content"`
	ContentType    ContentType `json:"content_type"`
	CreatedAt      time.Time   `json:"created_at"`

	// Populated on read from JetStream.
	Sequence uint64 `json:"sequence,omitempty"`
}

// SendMessageRequest is an inbound customer message.
type SendMessageRequest struct {
	Text        string `json:"text"`
	ButtonIndex *int   `json:"button_index,omitempty"`
}

// ListMessagesResponse is a page of conversation history.
type ListMessagesResponse struct {
	Messages     []Message `json:"messages"`
	LastSequence uint64    `json:"last_sequence"`
	HasMore      bool      `json:"has_more"`
}
