// Package engine interprets conversation flows. Each call handles one turn:
// it resolves where the conversation stands, moves along the graph according
// to the customer's message and produces the reply to send back.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/support-flow/internal/flow"
	"github.com/capitalize-ai/support-flow/internal/lock"
	"github.com/capitalize-ai/support-flow/internal/model"
	"github.com/capitalize-ai/support-flow/internal/validator"
	"github.com/capitalize-ai/support-flow/pkg/logger"
	"github.com/capitalize-ai/support-flow/pkg/metrics"
)

// errNoTransition marks a turn whose input matched no outgoing edge.
var errNoTransition = errors.New("no transition for input")

// Dependencies are the collaborators the engine drives. Locker and Events
// are optional: a nil Locker gets an in-process keyed mutex and a nil
// Events skips transfer notifications.
type Dependencies struct {
	Messages       MessageStore
	Variables      VariableStore
	Positions      PositionStore
	Gateway        ActionGateway
	WriteActions   WriteActionRepository
	SystemMessages SystemMessageRepository
	Locker         lock.Locker
	Events         EventPublisher
}

// Engine is the flow interpreter. It keeps no conversation state between
// calls; everything is reloaded from its stores on each turn.
type Engine struct {
	messages       MessageStore
	variables      VariableStore
	positions      PositionStore
	gateway        ActionGateway
	writeActions   WriteActionRepository
	systemMessages SystemMessageRepository
	locker         lock.Locker
	events         EventPublisher
	logger         *logger.Logger
	now            func() time.Time
}

// New creates an engine.
func New(deps Dependencies, log *logger.Logger) *Engine {
	locker := deps.Locker
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}
	return &Engine{
		messages:       deps.Messages,
		variables:      deps.Variables,
		positions:      deps.Positions,
		gateway:        deps.Gateway,
		writeActions:   deps.WriteActions,
		systemMessages: deps.SystemMessages,
		locker:         locker,
		events:         deps.Events,
		logger:         log.Component("engine"),
		now:            time.Now,
	}
}

// Start begins a conversation at the flow's initial node. Only an empty flow
// is reported as an error; every other problem becomes the reply.
func (e *Engine) Start(ctx context.Context, conversationID string, def *flow.Definition) (*model.BotResponse, error) {
	started := e.now()
	if def == nil {
		return nil, ErrEmptyFlow
	}
	initial, err := def.InitialNode()
	if err != nil {
		return nil, err
	}

	unlock, err := e.locker.Lock(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock conversation: %w", err)
	}
	defer e.release(conversationID, unlock)

	vars, err := e.loadVariables(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	st, err := e.process(ctx, initial, vars)
	if err != nil {
		return nil, err
	}
	if err := e.commit(ctx, conversationID, st); err != nil {
		return nil, err
	}
	return e.reply(ctx, "start", conversationID, st.response, started)
}

// Advance moves the conversation forward with the customer's message. For
// menu nodes buttonIndex selects the outgoing edge; when nil the text is
// matched against the button labels or read as a 1-based option number.
//
// At most one Advance runs per conversation id at a time.
func (e *Engine) Advance(ctx context.Context, conversationID string, def *flow.Definition, userText string, buttonIndex *int) (*model.BotResponse, error) {
	started := e.now()
	if def == nil || len(def.Nodes) == 0 {
		return nil, ErrEmptyFlow
	}

	unlock, err := e.locker.Lock(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock conversation: %w", err)
	}
	defer e.release(conversationID, unlock)

	current, awaiting, err := e.resolveCurrent(ctx, conversationID, def)
	switch {
	case errors.Is(err, ErrNoContextFound), errors.Is(err, ErrUnknownState):
		e.logger.Warn("conversation position could not be resolved",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return e.reply(ctx, "advance", conversationID, e.errorResponse(ctx, err), started)
	case err != nil:
		return nil, err
	}

	vars, err := e.loadVariables(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	st, err := e.transition(ctx, conversationID, def, current, awaiting, userText, buttonIndex, vars)
	if err != nil {
		return nil, err
	}
	if err := e.commit(ctx, conversationID, st); err != nil {
		return nil, err
	}
	return e.reply(ctx, "advance", conversationID, st.response, started)
}

// resolveCurrent finds the node the conversation is on. The stored position
// wins; without one the latest bot message is matched against node text.
func (e *Engine) resolveCurrent(ctx context.Context, conversationID string, def *flow.Definition) (*flow.Node, bool, error) {
	pos, err := e.positions.Load(ctx, conversationID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load position: %w", err)
	}
	if pos != nil {
		if pos.Status == model.StatusTransferred {
			return nil, false, ErrConversationTransferred
		}
		if node, ok := def.NodeByID(pos.NodeID); ok {
			return node, pos.AwaitingInput, nil
		}
		e.logger.Warn("stored node is not in the active flow",
			zap.String("conversation_id", conversationID),
			zap.String("node_id", pos.NodeID),
		)
	}
	return e.resolveByLatestMessage(ctx, conversationID, def)
}

// Deprecated resolution kept for conversations without a stored position.
// Duplicate text across nodes is not detected: the first match wins.
func (e *Engine) resolveByLatestMessage(ctx context.Context, conversationID string, def *flow.Definition) (*flow.Node, bool, error) {
	msg, err := e.messages.LatestBotMessage(ctx, conversationID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load latest bot message: %w", err)
	}
	if msg == nil {
		return nil, false, ErrNoContextFound
	}

	for i := range def.Nodes {
		node := &def.Nodes[i]
		p, err := node.Payload()
		if err != nil {
			continue
		}
		text := p.DisplayText()
		if text == "" || text != msg.Content {
			continue
		}

		e.logger.Warn("position resolved by message text",
			zap.String("conversation_id", conversationID),
			zap.String("node_id", node.ID),
		)
		if node.Type == flow.NodeTransfer {
			return nil, false, ErrConversationTransferred
		}
		awaiting := node.Type == flow.NodeCollectInfo || node.Type == flow.NodeIntegration
		return node, awaiting, nil
	}
	return nil, false, ErrUnknownState
}

func (e *Engine) transition(
	ctx context.Context,
	conversationID string,
	def *flow.Definition,
	current *flow.Node,
	awaiting bool,
	userText string,
	buttonIndex *int,
	vars map[string]string,
) (step, error) {
	payload, err := current.Payload()
	if err != nil {
		return e.failed(ctx, current, configMissing("%v", err)), nil
	}

	switch p := payload.(type) {
	case flow.CollectInfo:
		if awaiting {
			return e.collect(ctx, conversationID, def, current, p, userText, vars)
		}
	case flow.Integration:
		if awaiting {
			return e.answerIntegration(ctx, def, current, p, userText, vars)
		}
	case flow.MenuButtons:
		// Without buttons the menu was sent as a plain message.
		if len(p.Buttons) == 0 {
			break
		}
		idx, ok := menuChoice(p.Buttons, userText, buttonIndex)
		if !ok {
			return e.stay(ctx, current), nil
		}
		next, ok := def.Branch(current.ID, idx)
		if !ok {
			return e.stay(ctx, current), nil
		}
		return e.process(ctx, next, vars)
	case flow.Transfer:
		return step{}, ErrConversationTransferred
	}

	next, ok := def.Next(current.ID)
	if !ok {
		return e.stay(ctx, current), nil
	}
	return e.process(ctx, next, vars)
}

// collect validates the reply to a collect_info node, stores it and moves on.
func (e *Engine) collect(
	ctx context.Context,
	conversationID string,
	def *flow.Definition,
	current *flow.Node,
	p flow.CollectInfo,
	userText string,
	vars map[string]string,
) (step, error) {
	res := validator.Validate(p.ValidationType, userText, p.RegexPattern)
	if !res.Valid {
		content := p.ErrorMessage
		if content == "" {
			content = res.Error
		}
		return step{
			node:     current,
			awaiting: true,
			response: model.BotResponse{
				Kind:          model.KindInputRequest,
				Content:       content,
				RequiresInput: true,
				InputType:     collectInputType(p.ValidationType),
			},
			failure: ErrValidationFailed,
		}, nil
	}

	if p.VariableName == "" {
		return e.failed(ctx, current, configMissing("collect_info node %s has no variable name", current.ID)), nil
	}
	next, ok := def.Next(current.ID)
	if !ok {
		return e.stay(ctx, current), nil
	}

	value := strings.TrimSpace(userText)
	if err := e.variables.Upsert(ctx, conversationID, p.VariableName, value); err != nil {
		return step{}, fmt.Errorf("failed to store variable %s: %w", p.VariableName, err)
	}
	metrics.VariableUpsertsTotal.Inc()
	vars[p.VariableName] = value

	return e.process(ctx, next, vars)
}

// answerIntegration treats the customer's text as the integration's input
// field, runs the query and continues to the next node on success.
func (e *Engine) answerIntegration(
	ctx context.Context,
	def *flow.Definition,
	current *flow.Node,
	p flow.Integration,
	userText string,
	vars map[string]string,
) (step, error) {
	working := make(map[string]string, len(vars)+1)
	for k, v := range vars {
		working[k] = v
	}
	working[p.Field] = strings.TrimSpace(userText)

	st := e.processIntegration(ctx, current, p, working)
	if st.failure != nil || st.awaiting {
		return st, nil
	}

	next, ok := def.Next(current.ID)
	if !ok {
		return st, nil
	}
	nst, err := e.process(ctx, next, vars)
	if err != nil {
		return step{}, err
	}
	if nst.failure != nil {
		// The query went through: stay on the integration node, past its input.
		st.response.Content += replySeparator + nst.response.Content
		return st, nil
	}
	nst.response.Content = st.response.Content + replySeparator + nst.response.Content
	return nst, nil
}

func (e *Engine) stay(ctx context.Context, current *flow.Node) step {
	return step{node: current, response: e.fallbackResponse(ctx), failure: errNoTransition}
}

// commit records the new position. Failed steps leave the pre-turn position
// untouched.
func (e *Engine) commit(ctx context.Context, conversationID string, st step) error {
	if st.failure != nil {
		e.logger.Info("turn did not transition",
			zap.String("conversation_id", conversationID),
			zap.String("node_id", st.node.ID),
			zap.Error(st.failure),
		)
		return nil
	}

	status := model.StatusAwaitingReply
	if st.terminal {
		status = model.StatusTransferred
	}
	pos := &model.Position{
		ConversationID: conversationID,
		NodeID:         st.node.ID,
		AwaitingInput:  st.awaiting,
		Status:         status,
		UpdatedAt:      e.now(),
	}
	if err := e.positions.Save(ctx, pos); err != nil {
		return fmt.Errorf("failed to save position: %w", err)
	}

	if st.terminal {
		e.announceTransfer(ctx, conversationID, st)
	}
	return nil
}

func (e *Engine) announceTransfer(ctx context.Context, conversationID string, st step) {
	queue := st.response.TransferQueue
	metrics.FlowTransfersTotal.WithLabelValues(queue).Inc()
	e.logger.Info("conversation transferred",
		zap.String("conversation_id", conversationID),
		zap.String("queue", queue),
	)
	if e.events == nil {
		return
	}
	_, err := e.events.PublishEvent(ctx, &model.ConversationEvent{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		Type:           model.EventTypeTransfer,
		Reason:         queue,
		Metadata:       map[string]any{"queue": queue, "node_id": st.node.ID},
		CreatedAt:      e.now(),
	})
	if err != nil {
		e.logger.Warn("failed to publish transfer event",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
	}
}

// reply stores the response as an outbound bot message and returns it.
func (e *Engine) reply(ctx context.Context, operation, conversationID string, resp model.BotResponse, started time.Time) (*model.BotResponse, error) {
	if _, err := e.messages.Append(ctx, conversationID, model.SenderBot, resp.Content, resp.ContentType()); err != nil {
		return nil, fmt.Errorf("failed to store bot message: %w", err)
	}
	metrics.RecordTurn(operation, string(resp.Kind), e.now().Sub(started).Seconds())
	e.logger.Debug("turn completed",
		zap.String("operation", operation),
		zap.String("conversation_id", conversationID),
		zap.String("kind", string(resp.Kind)),
	)
	return &resp, nil
}

func (e *Engine) loadVariables(ctx context.Context, conversationID string) (map[string]string, error) {
	vars, err := e.variables.Get(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load variables: %w", err)
	}
	out := make(map[string]string, len(vars))
	for k, v := range vars {
		out[k] = v
	}
	return out, nil
}

func (e *Engine) release(conversationID string, unlock lock.UnlockFunc) {
	// The turn's ctx may already be cancelled; the lock must still go.
	if err := unlock(context.Background()); err != nil {
		e.logger.Warn("failed to release conversation lock",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
	}
}

// menuChoice picks the menu option for a turn: the explicit index, a
// matching button label, or a 1-based option number.
func menuChoice(buttons []string, text string, buttonIndex *int) (int, bool) {
	if buttonIndex != nil {
		return *buttonIndex, true
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, false
	}
	for i, b := range buttons {
		if strings.EqualFold(strings.TrimSpace(b), text) {
			return i, true
		}
	}
	if n, err := strconv.Atoi(text); err == nil && n >= 1 && n <= len(buttons) {
		return n - 1, true
	}
	return 0, false
}
