package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/support-flow/internal/engine"
	"github.com/capitalize-ai/support-flow/internal/middleware"
	"github.com/capitalize-ai/support-flow/internal/service"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// fail maps service errors to HTTP statuses. Unexpected errors are logged
// and hidden from the caller.
func (h *ConversationHandler) fail(w http.ResponseWriter, r *http.Request, conversationID, msg string, err error) {
	switch {
	case errors.Is(err, engine.ErrEmptyFlow):
		writeError(w, http.StatusServiceUnavailable, "no active flow")
	case errors.Is(err, engine.ErrConversationTransferred):
		writeError(w, http.StatusConflict, "conversation was transferred to an agent")
	case errors.Is(err, service.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "conversation is busy, try again")
	default:
		h.logger.WithConversation(middleware.GetCorrelationID(r.Context()), conversationID).
			Error(msg, zap.Error(err))
		writeError(w, http.StatusInternalServerError, msg)
	}
}
