package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/support-flow/internal/model"
	"github.com/capitalize-ai/support-flow/pkg/metrics"
)

const (
	// StreamName is the name of the conversations stream.
	StreamName = "SUPPORT_CONVERSATIONS"

	// SubjectPrefix is the prefix for all conversation subjects.
	SubjectPrefix = "conv"
)

// ErrInvalidSubjectToken is returned for ids that cannot be a subject token.
var ErrInvalidSubjectToken = errors.New("invalid subject token")

// History stores conversation messages and engine events in one JetStream
// stream. Messages go to conv.<id>.msg.<sender> and events to
// conv.<id>.event.<type>.
type History struct {
	client *Client
	now    func() time.Time
}

// NewHistory creates a history on top of a connected client.
func NewHistory(client *Client) *History {
	return &History{client: client, now: time.Now}
}

// EnsureStream ensures the conversations stream exists with proper configuration.
func (h *History) EnsureStream(ctx context.Context) error {
	js := h.client.JetStream()

	if _, err := js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      365 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		DenyDelete:  true,
		DenyPurge:   true,
		Description: "Support conversation messages and engine events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// MessageSubject returns the subject for a message.
func MessageSubject(conversationID string, sender model.SenderType) string {
	return fmt.Sprintf("%s.%s.msg.%s", SubjectPrefix, conversationID, sender)
}

// EventSubject returns the subject for an event.
func EventSubject(conversationID string, eventType model.EventType) string {
	return fmt.Sprintf("%s.%s.event.%s", SubjectPrefix, conversationID, eventType)
}

// MessagesFilter matches every message of a conversation.
func MessagesFilter(conversationID string) string {
	return fmt.Sprintf("%s.%s.msg.>", SubjectPrefix, conversationID)
}

// ValidSubjectToken reports whether s can be used as one subject token.
func ValidSubjectToken(s string) bool {
	return s != "" && !strings.ContainsAny(s, ".*> \t\r\n")
}

// Append publishes a message and returns it with its stream sequence.
func (h *History) Append(ctx context.Context, conversationID string, sender model.SenderType, content string, contentType model.ContentType) (*model.Message, error) {
	if !ValidSubjectToken(conversationID) {
		return nil, fmt.Errorf("conversation id %q: %w", conversationID, ErrInvalidSubjectToken)
	}

	msg := &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		SenderType:     sender,
		Content:        content,
		ContentType:    contentType,
		CreatedAt:      h.now(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}

	ack, err := h.client.JetStream().Publish(ctx, MessageSubject(conversationID, sender), data)
	if err != nil {
		return nil, fmt.Errorf("failed to publish message: %w", err)
	}
	metrics.NATSPublishedTotal.WithLabelValues("message").Inc()

	msg.Sequence = ack.Sequence
	return msg, nil
}

// LatestBotMessage returns the newest bot message of a conversation, or nil
// when the bot never spoke in it.
func (h *History) LatestBotMessage(ctx context.Context, conversationID string) (*model.Message, error) {
	if !ValidSubjectToken(conversationID) {
		return nil, fmt.Errorf("conversation id %q: %w", conversationID, ErrInvalidSubjectToken)
	}

	stream, err := h.client.JetStream().Stream(ctx, StreamName)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream: %w", err)
	}

	raw, err := stream.GetLastMsgForSubject(ctx, MessageSubject(conversationID, model.SenderBot))
	if err != nil {
		if errors.Is(err, jetstream.ErrMsgNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest bot message: %w", err)
	}

	var msg model.Message
	if err := json.Unmarshal(raw.Data, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	msg.Sequence = raw.Sequence
	return &msg, nil
}

// PublishEvent publishes an event to JetStream.
func (h *History) PublishEvent(ctx context.Context, event *model.ConversationEvent) (uint64, error) {
	if !ValidSubjectToken(event.ConversationID) {
		return 0, fmt.Errorf("conversation id %q: %w", event.ConversationID, ErrInvalidSubjectToken)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event: %w", err)
	}

	ack, err := h.client.JetStream().Publish(ctx, EventSubject(event.ConversationID, event.Type), data)
	if err != nil {
		return 0, fmt.Errorf("failed to publish event: %w", err)
	}
	metrics.NATSPublishedTotal.WithLabelValues("event").Inc()

	return ack.Sequence, nil
}

// List returns up to limit messages of a conversation after a sequence.
func (h *History) List(ctx context.Context, conversationID string, afterSequence uint64, limit int) ([]model.Message, error) {
	if !ValidSubjectToken(conversationID) {
		return nil, fmt.Errorf("conversation id %q: %w", conversationID, ErrInvalidSubjectToken)
	}

	cfg := jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{MessagesFilter(conversationID)},
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	}
	if afterSequence > 0 {
		cfg.DeliverPolicy = jetstream.DeliverByStartSequencePolicy
		cfg.OptStartSeq = afterSequence + 1
	}

	consumer, err := h.client.JetStream().OrderedConsumer(ctx, StreamName, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	batch, err := consumer.Fetch(limit, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	var messages []model.Message
	for msg := range batch.Messages() {
		var message model.Message
		if err := json.Unmarshal(msg.Data(), &message); err != nil {
			continue
		}
		if meta, err := msg.Metadata(); err == nil {
			message.Sequence = meta.Sequence.Stream
		}
		messages = append(messages, message)
	}

	if err := batch.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("batch error: %w", err)
	}
	return messages, nil
}
