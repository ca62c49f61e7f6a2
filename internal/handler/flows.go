package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/support-flow/internal/service"
	"github.com/capitalize-ai/support-flow/pkg/logger"
)

// FlowHandler handles flow administration endpoints.
type FlowHandler struct {
	flows  *service.FlowSource
	logger *logger.Logger
}

// NewFlowHandler creates a new flow handler.
func NewFlowHandler(flows *service.FlowSource, log *logger.Logger) *FlowHandler {
	return &FlowHandler{flows: flows, logger: log.Component("handler")}
}

// Reload handles POST /api/v1/flows/reload
func (h *FlowHandler) Reload(w http.ResponseWriter, r *http.Request) {
	if err := h.flows.Reload(); err != nil {
		h.logger.Warn("flow reload rejected", zap.Error(err))
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	def, err := h.flows.Active(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "reloaded",
		"nodes":  len(def.Nodes),
		"edges":  len(def.Edges),
	})
}
