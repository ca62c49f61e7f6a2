package middleware

import (
	"errors"
	"regexp"
	"unicode/utf8"
)

// MaxMessageLength bounds a customer message in bytes.
const MaxMessageLength = 4096

// Channel conversation ids are opaque, but must be usable as a NATS subject
// token and a Redis key suffix.
var conversationIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidateMessageText validates customer message text. Empty text is allowed
// when a button was pressed.
func ValidateMessageText(text string, hasButton bool) error {
	if text == "" && !hasButton {
		return errors.New("text cannot be empty")
	}
	if len(text) > MaxMessageLength {
		return errors.New("text exceeds maximum length")
	}
	if !utf8.ValidString(text) {
		return errors.New("text must be valid UTF-8")
	}
	return nil
}

// ValidateConversationID validates a conversation ID.
func ValidateConversationID(id string) error {
	if !conversationIDPattern.MatchString(id) {
		return errors.New("invalid conversation ID format")
	}
	return nil
}
