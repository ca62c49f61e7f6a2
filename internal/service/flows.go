package service

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/capitalize-ai/support-flow/internal/engine"
	"github.com/capitalize-ai/support-flow/internal/flow"
	"github.com/capitalize-ai/support-flow/internal/gateway"
	"github.com/capitalize-ai/support-flow/pkg/logger"
)

// FlowSource holds the flow definition conversations run on. The active
// flow can be swapped at runtime; turns already running keep the one they
// loaded.
type FlowSource struct {
	path    string
	current atomic.Pointer[flow.Definition]
	logger  *logger.Logger
}

// NewFlowSource creates a source serving def. A nil def behaves as an empty
// flow until one is set.
func NewFlowSource(def *flow.Definition, log *logger.Logger) *FlowSource {
	s := &FlowSource{logger: log.Component("flows")}
	if def != nil {
		s.current.Store(def)
	}
	return s
}

// LoadFlowSource reads and validates the flow at path.
func LoadFlowSource(path string, log *logger.Logger) (*FlowSource, error) {
	s := NewFlowSource(nil, log)
	s.path = path
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the flow file. An invalid file leaves the active flow in
// place.
func (s *FlowSource) Reload() error {
	if s.path == "" {
		return fmt.Errorf("flow source has no file")
	}
	def, err := flow.LoadFile(s.path)
	if err != nil {
		return err
	}
	if err := def.Validate(gateway.Actions()...); err != nil {
		return fmt.Errorf("invalid flow %s: %w", s.path, err)
	}
	for text, ids := range def.DuplicateDisplayTexts() {
		s.logger.Warn("nodes share display text; legacy position lookup picks the first",
			zap.String("text", text),
			zap.Strings("node_ids", ids),
		)
	}

	s.current.Store(def)
	s.logger.Info("flow loaded",
		zap.String("path", s.path),
		zap.Int("nodes", len(def.Nodes)),
		zap.Int("edges", len(def.Edges)),
	)
	return nil
}

// Set replaces the active flow.
func (s *FlowSource) Set(def *flow.Definition) {
	s.current.Store(def)
}

// Active returns the flow new turns should use.
func (s *FlowSource) Active(_ context.Context) (*flow.Definition, error) {
	def := s.current.Load()
	if def == nil || len(def.Nodes) == 0 {
		return nil, engine.ErrEmptyFlow
	}
	return def, nil
}
