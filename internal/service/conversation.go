// Package service ties the flow engine to the conversation history for the
// HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/capitalize-ai/support-flow/internal/engine"
	"github.com/capitalize-ai/support-flow/internal/flow"
	"github.com/capitalize-ai/support-flow/internal/model"
	"github.com/capitalize-ai/support-flow/pkg/logger"
)

// ErrEmptyMessage is returned when a customer message has neither text nor
// a button index.
var ErrEmptyMessage = errors.New("message has no text or button index")

// FlowProvider supplies the active flow.
type FlowProvider interface {
	Active(ctx context.Context) (*flow.Definition, error)
}

// Interpreter runs conversation turns.
type Interpreter interface {
	Start(ctx context.Context, conversationID string, def *flow.Definition) (*model.BotResponse, error)
	Advance(ctx context.Context, conversationID string, def *flow.Definition, userText string, buttonIndex *int) (*model.BotResponse, error)
}

// History is the conversation log the service appends to and reads from.
type History interface {
	Append(ctx context.Context, conversationID string, sender model.SenderType, content string, contentType model.ContentType) (*model.Message, error)
	List(ctx context.Context, conversationID string, afterSequence uint64, limit int) ([]model.Message, error)
}

// ConversationService handles conversation turns.
type ConversationService struct {
	engine    Interpreter
	flows     FlowProvider
	history   History
	variables engine.VariableStore
	logger    *logger.Logger
}

// NewConversationService creates a new conversation service.
func NewConversationService(
	interp Interpreter,
	flows FlowProvider,
	history History,
	variables engine.VariableStore,
	log *logger.Logger,
) *ConversationService {
	return &ConversationService{
		engine:    interp,
		flows:     flows,
		history:   history,
		variables: variables,
		logger:    log.Component("conversations"),
	}
}

// Start opens the conversation at the initial node of the active flow.
func (s *ConversationService) Start(ctx context.Context, conversationID string) (*model.BotResponse, error) {
	def, err := s.flows.Active(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := s.engine.Start(ctx, conversationID, def)
	if err != nil {
		return nil, err
	}
	s.logger.Info("conversation started",
		zap.String("conversation_id", conversationID),
		zap.String("kind", string(resp.Kind)),
	)
	return resp, nil
}

// SendMessage records the customer's message and runs the next turn.
func (s *ConversationService) SendMessage(ctx context.Context, conversationID string, req *model.SendMessageRequest) (*model.BotResponse, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" && req.ButtonIndex == nil {
		return nil, ErrEmptyMessage
	}

	def, err := s.flows.Active(ctx)
	if err != nil {
		return nil, err
	}

	content := req.Text
	if content == "" {
		content = fmt.Sprintf("option %d", *req.ButtonIndex+1)
	}
	if _, err := s.history.Append(ctx, conversationID, model.SenderCustomer, content, model.ContentText); err != nil {
		return nil, fmt.Errorf("failed to store customer message: %w", err)
	}

	return s.engine.Advance(ctx, conversationID, def, req.Text, req.ButtonIndex)
}

// Variables returns the values collected in the conversation.
func (s *ConversationService) Variables(ctx context.Context, conversationID string) (map[string]string, error) {
	vars, err := s.variables.Get(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load variables: %w", err)
	}
	if vars == nil {
		vars = map[string]string{}
	}
	return vars, nil
}

// Messages returns a page of the conversation history.
func (s *ConversationService) Messages(ctx context.Context, conversationID string, afterSequence uint64, limit int) (*model.ListMessagesResponse, error) {
	msgs, err := s.history.List(ctx, conversationID, afterSequence, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	resp := &model.ListMessagesResponse{
		Messages:     msgs,
		LastSequence: afterSequence,
		HasMore:      limit > 0 && len(msgs) == limit,
	}
	if n := len(msgs); n > 0 {
		resp.LastSequence = msgs[n-1].Sequence
	}
	if resp.Messages == nil {
		resp.Messages = []model.Message{}
	}
	return resp, nil
}
