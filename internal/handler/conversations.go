// Package handler provides HTTP handlers for the API.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/support-flow/internal/middleware"
	"github.com/capitalize-ai/support-flow/internal/service"
	"github.com/capitalize-ai/support-flow/pkg/logger"
)

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	service *service.ConversationService
	logger  *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(svc *service.ConversationService, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		service: svc,
		logger:  log.Component("handler"),
	}
}

// Start handles POST /api/v1/conversations/{id}/start
func (h *ConversationHandler) Start(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.service.Start(ctx, conversationID)
	if err != nil {
		h.fail(w, r, conversationID, "failed to start conversation", err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Variables handles GET /api/v1/conversations/{id}/variables
func (h *ConversationHandler) Variables(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	vars, err := h.service.Variables(ctx, conversationID)
	if err != nil {
		h.fail(w, r, conversationID, "failed to get variables", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": conversationID,
		"variables":       vars,
	})
}
