package engine

import (
	"context"

	"github.com/capitalize-ai/support-flow/internal/catalog"
	"github.com/capitalize-ai/support-flow/internal/gateway"
	"github.com/capitalize-ai/support-flow/internal/model"
)

// MessageStore reads and appends conversation history.
type MessageStore interface {
	// LatestBotMessage returns the most recent bot-authored message, or nil
	// when the bot has not spoken in this conversation.
	LatestBotMessage(ctx context.Context, conversationID string) (*model.Message, error)
	Append(ctx context.Context, conversationID string, sender model.SenderType, content string, contentType model.ContentType) (*model.Message, error)
}

// VariableStore persists conversation variables. Upsert must be atomic per
// (conversation, name).
type VariableStore interface {
	Get(ctx context.Context, conversationID string) (map[string]string, error)
	Upsert(ctx context.Context, conversationID, name, value string) error
}

// PositionStore persists where each conversation stands in the flow.
type PositionStore interface {
	// Load returns nil when no position was recorded.
	Load(ctx context.Context, conversationID string) (*model.Position, error)
	Save(ctx context.Context, pos *model.Position) error
}

// WriteActionRepository looks up configured write actions.
type WriteActionRepository interface {
	FindByID(ctx context.Context, id string) (*catalog.WriteAction, bool, error)
	ExtractVariableNames(template string) []string
}

// SystemMessageRepository provides configurable customer-facing copy.
type SystemMessageRepository interface {
	ContentFor(ctx context.Context, key string) (string, bool, error)
}

// ActionGateway performs external ERP calls.
type ActionGateway interface {
	Query(ctx context.Context, action, field, value string) gateway.Result
	Write(ctx context.Context, req gateway.WriteRequest) gateway.Result
}

// EventPublisher announces engine outcomes to other collaborators.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *model.ConversationEvent) (uint64, error)
}
