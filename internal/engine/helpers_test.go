package engine_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/support-flow/internal/catalog"
	"github.com/capitalize-ai/support-flow/internal/engine"
	"github.com/capitalize-ai/support-flow/internal/flow"
	"github.com/capitalize-ai/support-flow/internal/gateway"
	"github.com/capitalize-ai/support-flow/internal/model"
	"github.com/capitalize-ai/support-flow/internal/store/memory"
	"github.com/capitalize-ai/support-flow/pkg/logger"
)

type queryCall struct {
	Action, Field, Value string
}

type fakeGateway struct {
	mu          sync.Mutex
	queryResult gateway.Result
	writeResult gateway.Result
	queries     []queryCall
	writes      []gateway.WriteRequest
}

func (g *fakeGateway) Query(_ context.Context, action, field, value string) gateway.Result {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queries = append(g.queries, queryCall{action, field, value})
	return g.queryResult
}

func (g *fakeGateway) Write(_ context.Context, req gateway.WriteRequest) gateway.Result {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.writes = append(g.writes, req)
	return g.writeResult
}

func (g *fakeGateway) queryCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.queries)
}

func (g *fakeGateway) writeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.writes)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*model.ConversationEvent
}

func (p *fakePublisher) PublishEvent(_ context.Context, ev *model.ConversationEvent) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return uint64(len(p.events)), nil
}

type harness struct {
	engine    *engine.Engine
	messages  *memory.MessageStore
	vars      *memory.VariableStore
	positions *memory.PositionStore
	gw        *fakeGateway
	events    *fakePublisher
}

func newHarness(t *testing.T, actions []catalog.WriteAction, systemMessages map[string]string) *harness {
	t.Helper()
	cat, err := catalog.New(actions, systemMessages)
	require.NoError(t, err)

	h := &harness{
		messages:  memory.NewMessageStore(),
		vars:      memory.NewVariableStore(),
		positions: memory.NewPositionStore(),
		gw: &fakeGateway{
			queryResult: gateway.Result{OK: true, StatusCode: 200, Message: "Invoice INV-1: amount 10."},
			writeResult: gateway.Result{OK: true, StatusCode: 200},
		},
		events: &fakePublisher{},
	}
	h.engine = engine.New(engine.Dependencies{
		Messages:       h.messages,
		Variables:      h.vars,
		Positions:      h.positions,
		Gateway:        h.gw,
		WriteActions:   cat,
		SystemMessages: cat,
		Events:         h.events,
	}, logger.NewNop())
	return h
}

func (h *harness) position(t *testing.T, conversationID string) *model.Position {
	t.Helper()
	pos, err := h.positions.Load(context.Background(), conversationID)
	require.NoError(t, err)
	return pos
}

func sendMessage(id, text string) flow.Node {
	return flow.Node{ID: id, Type: flow.NodeSendMessage, Data: map[string]any{"message": text}}
}

func edge(id, source, target string) flow.Edge {
	return flow.Edge{ID: id, Source: source, Target: target}
}

func intPtr(i int) *int { return &i }
