package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/capitalize-ai/support-flow/internal/flow"
	"github.com/capitalize-ai/support-flow/internal/gateway"
)

var (
	// ErrEmptyFlow is the one condition surfaced to the caller as a hard
	// failure: there is nothing to run.
	ErrEmptyFlow = flow.ErrEmptyFlow

	ErrNoContextFound       = errors.New("no bot message to resume the conversation from")
	ErrUnknownState         = errors.New("current flow node could not be resolved")
	ErrValidationFailed     = errors.New("customer input failed validation")
	ErrConfigurationMissing = errors.New("required configuration is missing")

	// ErrConversationTransferred is returned by Advance once a conversation
	// has been handed to a human queue.
	ErrConversationTransferred = errors.New("conversation was transferred to a human queue")
)

// ExternalCallFailedError wraps a failed gateway call.
type ExternalCallFailedError struct {
	Action string
	Reason gateway.Reason
}

func (e *ExternalCallFailedError) Error() string {
	return fmt.Sprintf("external call %q failed: %s", e.Action, e.Reason)
}

// MissingVariablesError lists template variables with no bound value.
type MissingVariablesError struct {
	Names []string
}

func (e *MissingVariablesError) Error() string {
	return "missing variables: " + strings.Join(e.Names, ", ")
}

func configMissing(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfigurationMissing, fmt.Sprintf(format, args...))
}
