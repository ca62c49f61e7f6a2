// Package memory provides in-process implementations of the engine's stores.
// They back local simulation, single-replica deployments and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/capitalize-ai/support-flow/internal/model"
)

// MessageStore keeps conversation history in memory.
type MessageStore struct {
	mu       sync.RWMutex
	messages map[string][]model.Message
	seq      uint64
}

// NewMessageStore creates an empty message store.
func NewMessageStore() *MessageStore {
	return &MessageStore{messages: make(map[string][]model.Message)}
}

// Append adds a message to the conversation history.
func (s *MessageStore) Append(_ context.Context, conversationID string, sender model.SenderType, content string, contentType model.ContentType) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	msg := model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		SenderType:     sender,
		Content:        content,
		ContentType:    contentType,
		CreatedAt:      time.Now(),
		Sequence:       s.seq,
	}
	s.messages[conversationID] = append(s.messages[conversationID], msg)
	return &msg, nil
}

// LatestBotMessage returns the newest bot message or nil.
func (s *MessageStore) LatestBotMessage(_ context.Context, conversationID string) (*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[conversationID]
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].SenderType == model.SenderBot {
			msg := msgs[i]
			return &msg, nil
		}
	}
	return nil, nil
}

// List returns up to limit messages after a sequence, oldest first. A
// non-positive limit returns everything.
func (s *MessageStore) List(_ context.Context, conversationID string, afterSequence uint64, limit int) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Message
	for _, m := range s.messages[conversationID] {
		if m.Sequence <= afterSequence {
			continue
		}
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, m)
	}
	return out, nil
}

// VariableStore keeps conversation variables in memory.
type VariableStore struct {
	mu   sync.RWMutex
	vars map[string]map[string]string
}

// NewVariableStore creates an empty variable store.
func NewVariableStore() *VariableStore {
	return &VariableStore{vars: make(map[string]map[string]string)}
}

// Get returns a copy of the conversation's variables.
func (s *VariableStore) Get(_ context.Context, conversationID string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.vars[conversationID]))
	for k, v := range s.vars[conversationID] {
		out[k] = v
	}
	return out, nil
}

// Upsert inserts or replaces one variable.
func (s *VariableStore) Upsert(_ context.Context, conversationID, name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.vars[conversationID]
	if !ok {
		m = make(map[string]string)
		s.vars[conversationID] = m
	}
	m[name] = value
	return nil
}

// PositionStore keeps conversation positions in memory.
type PositionStore struct {
	mu        sync.RWMutex
	positions map[string]model.Position
}

// NewPositionStore creates an empty position store.
func NewPositionStore() *PositionStore {
	return &PositionStore{positions: make(map[string]model.Position)}
}

// Load returns the stored position or nil.
func (s *PositionStore) Load(_ context.Context, conversationID string) (*model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.positions[conversationID]
	if !ok {
		return nil, nil
	}
	return &pos, nil
}

// Save stores the position.
func (s *PositionStore) Save(_ context.Context, pos *model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.positions[pos.ConversationID] = *pos
	return nil
}
