// Package redis keeps conversation variables and positions in Redis so that
// several API replicas can share them.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/capitalize-ai/support-flow/internal/model"
)

// DefaultPrefix namespaces every key written by this package.
const DefaultPrefix = "support-flow:"

// Store implements the engine's VariableStore and PositionStore.
// Variables live in one hash per conversation and the position in a JSON
// string next to it.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithTTL expires a conversation's keys after ttl without writes.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// NewClient opens a Redis client.
func NewClient(address, password string, db int) *backend.Client {
	return backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
}

// NewFromClient creates a store on an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) varsKey(conversationID string) string {
	return s.prefix + "vars:" + conversationID
}

func (s *Store) positionKey(conversationID string) string {
	return s.prefix + "position:" + conversationID
}

// Get returns all variables of a conversation.
func (s *Store) Get(ctx context.Context, conversationID string) (map[string]string, error) {
	vars, err := s.client.HGetAll(ctx, s.varsKey(conversationID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get variables from redis: %w", err)
	}
	return vars, nil
}

// Upsert sets one variable. HSET replaces a single field atomically.
func (s *Store) Upsert(ctx context.Context, conversationID, name, value string) error {
	key := s.varsKey(conversationID)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, name, value)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to upsert variable in redis: %w", err)
	}
	return nil
}

// Load returns the conversation's position, or nil when none is stored.
func (s *Store) Load(ctx context.Context, conversationID string) (*model.Position, error) {
	val, err := s.client.Get(ctx, s.positionKey(conversationID)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get position from redis: %w", err)
	}

	var pos model.Position
	if err := json.Unmarshal([]byte(val), &pos); err != nil {
		return nil, fmt.Errorf("failed to unmarshal position: %w", err)
	}
	return &pos, nil
}

// Save stores the position.
func (s *Store) Save(ctx context.Context, pos *model.Position) error {
	data, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("failed to marshal position: %w", err)
	}
	if err := s.client.Set(ctx, s.positionKey(pos.ConversationID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save position to redis: %w", err)
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
