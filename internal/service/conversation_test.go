package service_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/support-flow/internal/catalog"
	"github.com/capitalize-ai/support-flow/internal/engine"
	"github.com/capitalize-ai/support-flow/internal/flow"
	"github.com/capitalize-ai/support-flow/internal/gateway"
	"github.com/capitalize-ai/support-flow/internal/model"
	"github.com/capitalize-ai/support-flow/internal/service"
	"github.com/capitalize-ai/support-flow/internal/store/memory"
	"github.com/capitalize-ai/support-flow/pkg/logger"
)

const menuFlowYAML = `
nodes:
  - id: welcome
    type: menu_buttons
    data:
      message: How can we help?
      buttons: [Invoices, Talk to an agent]
  - id: invoices
    type: send_message
    data:
      message: Invoices are sent on the 5th.
  - id: agent
    type: transfer
    data:
      queue: billing
edges:
  - {id: e1, source: welcome, target: invoices}
  - {id: e2, source: welcome, target: agent}
`

type fixture struct {
	svc      *service.ConversationService
	flows    *service.FlowSource
	messages *memory.MessageStore
	vars     *memory.VariableStore
}

func newFixture(t *testing.T, def *flow.Definition) *fixture {
	t.Helper()
	log := logger.NewNop()
	cat, err := catalog.New(nil, nil)
	require.NoError(t, err)

	f := &fixture{
		flows:    service.NewFlowSource(def, log),
		messages: memory.NewMessageStore(),
		vars:     memory.NewVariableStore(),
	}
	eng := engine.New(engine.Dependencies{
		Messages:       f.messages,
		Variables:      f.vars,
		Positions:      memory.NewPositionStore(),
		Gateway:        gateway.New(gateway.Config{}, log),
		WriteActions:   cat,
		SystemMessages: cat,
	}, log)
	f.svc = service.NewConversationService(eng, f.flows, f.messages, f.vars, log)
	return f
}

func parseFlow(t *testing.T, src string) *flow.Definition {
	t.Helper()
	def, err := flow.Parse([]byte(src))
	require.NoError(t, err)
	return def
}

func TestConversationService_EmptyFlow(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Start(ctx, "conv-1")
	assert.ErrorIs(t, err, engine.ErrEmptyFlow)

	_, err = f.svc.SendMessage(ctx, "conv-1", &model.SendMessageRequest{Text: "hi"})
	assert.ErrorIs(t, err, engine.ErrEmptyFlow)
}

func TestConversationService_Turns(t *testing.T) {
	f := newFixture(t, parseFlow(t, menuFlowYAML))
	ctx := context.Background()

	resp, err := f.svc.Start(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, model.KindMenu, resp.Kind)
	assert.Equal(t, []string{"Invoices", "Talk to an agent"}, resp.Buttons)

	resp, err = f.svc.SendMessage(ctx, "conv-1", &model.SendMessageRequest{ButtonIndex: intPtr(0)})
	require.NoError(t, err)
	assert.Equal(t, "Invoices are sent on the 5th.", resp.Content)

	page, err := f.svc.Messages(ctx, "conv-1", 0, 10)
	require.NoError(t, err)
	require.Len(t, page.Messages, 3)
	assert.Equal(t, model.SenderBot, page.Messages[0].SenderType)
	assert.Equal(t, model.ContentMenu, page.Messages[0].ContentType)
	assert.Equal(t, model.SenderCustomer, page.Messages[1].SenderType)
	assert.Equal(t, "option 1", page.Messages[1].Content)
	assert.Equal(t, model.SenderBot, page.Messages[2].SenderType)
	assert.Equal(t, page.Messages[2].Sequence, page.LastSequence)
	assert.False(t, page.HasMore)
}

func TestConversationService_EmptyMessage(t *testing.T) {
	f := newFixture(t, parseFlow(t, menuFlowYAML))

	_, err := f.svc.SendMessage(context.Background(), "conv-1", &model.SendMessageRequest{Text: "  "})
	assert.ErrorIs(t, err, service.ErrEmptyMessage)
}

func TestConversationService_Transferred(t *testing.T) {
	f := newFixture(t, parseFlow(t, menuFlowYAML))
	ctx := context.Background()

	_, err := f.svc.Start(ctx, "conv-1")
	require.NoError(t, err)

	resp, err := f.svc.SendMessage(ctx, "conv-1", &model.SendMessageRequest{Text: "talk to an agent"})
	require.NoError(t, err)
	assert.Equal(t, model.KindTransfer, resp.Kind)
	assert.Equal(t, "billing", resp.TransferQueue)

	_, err = f.svc.SendMessage(ctx, "conv-1", &model.SendMessageRequest{Text: "hello?"})
	assert.ErrorIs(t, err, engine.ErrConversationTransferred)
}

func TestConversationService_Variables(t *testing.T) {
	f := newFixture(t, parseFlow(t, menuFlowYAML))
	ctx := context.Background()

	vars, err := f.svc.Variables(ctx, "conv-1")
	require.NoError(t, err)
	assert.NotNil(t, vars)
	assert.Empty(t, vars)

	require.NoError(t, f.vars.Upsert(ctx, "conv-1", "email", "ana@example.com"))
	vars, err = f.svc.Variables(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"email": "ana@example.com"}, vars)
}

func TestFlowSource_Reload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(menuFlowYAML), 0o600))

	src, err := service.LoadFlowSource(path, logger.NewNop())
	require.NoError(t, err)

	def, err := src.Active(context.Background())
	require.NoError(t, err)
	assert.Len(t, def.Nodes, 3)

	// A broken file keeps the previous flow active.
	require.NoError(t, os.WriteFile(path, []byte("nodes:\n  - id: a\n    type: nope\n"), 0o600))
	assert.Error(t, src.Reload())

	def, err = src.Active(context.Background())
	require.NoError(t, err)
	assert.Len(t, def.Nodes, 3)

	// So does an integration action the gateway does not serve.
	unknownAction := "nodes:\n  - id: a\n    type: integration\n    data: {action: launch_rockets, field: document}\n"
	require.NoError(t, os.WriteFile(path, []byte(unknownAction), 0o600))
	err = src.Reload()
	assert.ErrorContains(t, err, "launch_rockets")

	def, err = src.Active(context.Background())
	require.NoError(t, err)
	assert.Len(t, def.Nodes, 3)
}

func TestLoadFlowSource_Missing(t *testing.T) {
	_, err := service.LoadFlowSource(filepath.Join(t.TempDir(), "missing.yaml"), logger.NewNop())
	assert.Error(t, err)
}

func intPtr(i int) *int { return &i }
