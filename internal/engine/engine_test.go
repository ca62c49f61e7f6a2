package engine_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/support-flow/internal/catalog"
	"github.com/capitalize-ai/support-flow/internal/engine"
	"github.com/capitalize-ai/support-flow/internal/flow"
	"github.com/capitalize-ai/support-flow/internal/gateway"
	"github.com/capitalize-ai/support-flow/internal/model"
)

func TestStartEmptyFlow(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()

	_, err := h.engine.Start(ctx, "conv-1", &flow.Definition{})
	assert.ErrorIs(t, err, engine.ErrEmptyFlow)

	_, err = h.engine.Advance(ctx, "conv-1", &flow.Definition{}, "hi", nil)
	assert.ErrorIs(t, err, engine.ErrEmptyFlow)

	_, err = h.engine.Start(ctx, "conv-1", nil)
	assert.ErrorIs(t, err, engine.ErrEmptyFlow)
}

func TestStartResponseKinds(t *testing.T) {
	tests := []struct {
		name      string
		node      flow.Node
		kind      model.ResponseKind
		content   string
		inputType model.InputType
	}{
		{
			name:    "send message",
			node:    sendMessage("a", "Hi"),
			kind:    model.KindMessage,
			content: "Hi",
		},
		{
			name:    "send message without text",
			node:    flow.Node{ID: "a", Type: flow.NodeSendMessage, Data: map[string]any{}},
			kind:    model.KindMessage,
			content: flow.PlaceholderMessage,
		},
		{
			name: "menu",
			node: flow.Node{ID: "a", Type: flow.NodeMenuButtons, Data: map[string]any{
				"message": "Pick one", "buttons": []any{"Billing", "Support"},
			}},
			kind:    model.KindMenu,
			content: "Pick one",
		},
		{
			name: "menu without buttons",
			node: flow.Node{ID: "a", Type: flow.NodeMenuButtons, Data: map[string]any{
				"message": "Nothing to pick",
			}},
			kind:    model.KindMessage,
			content: "Nothing to pick",
		},
		{
			name: "collect info",
			node: flow.Node{ID: "a", Type: flow.NodeCollectInfo, Data: map[string]any{
				"userMessage": "Your e-mail?", "validationType": "email", "variableName": "email",
			}},
			kind:      model.KindInputRequest,
			content:   "Your e-mail?",
			inputType: model.InputEmail,
		},
		{
			name: "integration without input",
			node: flow.Node{ID: "a", Type: flow.NodeIntegration, Data: map[string]any{
				"action": "invoice_lookup", "field": "phone",
			}},
			kind:      model.KindInputRequest,
			content:   "Please enter your phone:",
			inputType: model.InputPhone,
		},
		{
			name: "unknown type",
			node: flow.Node{ID: "a", Type: "carrier_pigeon"},
			kind: model.KindError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil, nil)
			def := &flow.Definition{Nodes: []flow.Node{tt.node}}

			resp, err := h.engine.Start(context.Background(), "conv-1", def)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, resp.Kind)
			if tt.content != "" {
				assert.Equal(t, tt.content, resp.Content)
			}
			if tt.inputType != "" {
				assert.True(t, resp.RequiresInput)
				assert.Equal(t, tt.inputType, resp.InputType)
			}
		})
	}
}

func TestStartFailureCommitsNoPosition(t *testing.T) {
	h := newHarness(t, nil, nil)
	def := &flow.Definition{Nodes: []flow.Node{{ID: "w", Type: flow.NodeExecuteWriteAction, Data: map[string]any{"actionId": "nope"}}}}

	resp, err := h.engine.Start(context.Background(), "conv-1", def)
	require.NoError(t, err)
	assert.Equal(t, model.KindError, resp.Kind)
	assert.Nil(t, h.position(t, "conv-1"))
}

func TestSendMessageChain(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	def := &flow.Definition{
		Nodes: []flow.Node{sendMessage("a", "Hi"), sendMessage("b", "Bye")},
		Edges: []flow.Edge{edge("e1", "a", "b")},
	}

	resp, err := h.engine.Start(ctx, "conv-1", def)
	require.NoError(t, err)
	assert.Equal(t, "Hi", resp.Content)

	pos := h.position(t, "conv-1")
	require.NotNil(t, pos)
	assert.Equal(t, "a", pos.NodeID)
	assert.Equal(t, model.StatusAwaitingReply, pos.Status)

	resp, err = h.engine.Advance(ctx, "conv-1", def, "anything", nil)
	require.NoError(t, err)
	assert.Equal(t, model.KindMessage, resp.Kind)
	assert.Equal(t, "Bye", resp.Content)
	assert.Equal(t, "b", h.position(t, "conv-1").NodeID)

	// b has no outgoing edge.
	resp, err = h.engine.Advance(ctx, "conv-1", def, "anything", nil)
	require.NoError(t, err)
	assert.Equal(t, "Sorry, I didn't understand. Please try again.", resp.Content)
	assert.Equal(t, "b", h.position(t, "conv-1").NodeID)

	msgs, err := h.messages.List(ctx, "conv-1", 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	for _, m := range msgs {
		assert.Equal(t, model.SenderBot, m.SenderType)
	}
}

func TestAdvanceResolvesByLatestBotMessage(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	def := &flow.Definition{
		Nodes: []flow.Node{sendMessage("a", "Hi"), sendMessage("b", "Bye")},
		Edges: []flow.Edge{edge("e1", "a", "b")},
	}

	_, err := h.messages.Append(ctx, "conv-1", model.SenderBot, "Hi", model.ContentText)
	require.NoError(t, err)
	_, err = h.messages.Append(ctx, "conv-1", model.SenderCustomer, "hello", model.ContentText)
	require.NoError(t, err)

	resp, err := h.engine.Advance(ctx, "conv-1", def, "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, "Bye", resp.Content)
	assert.Equal(t, "b", h.position(t, "conv-1").NodeID)
}

func TestAdvanceWithoutContext(t *testing.T) {
	ctx := context.Background()
	def := &flow.Definition{Nodes: []flow.Node{sendMessage("a", "Hi")}}

	t.Run("no bot message", func(t *testing.T) {
		h := newHarness(t, nil, nil)
		resp, err := h.engine.Advance(ctx, "conv-1", def, "hello", nil)
		require.NoError(t, err)
		assert.Equal(t, model.KindError, resp.Kind)
		assert.Nil(t, h.position(t, "conv-1"))
	})

	t.Run("bot message matches no node", func(t *testing.T) {
		h := newHarness(t, nil, map[string]string{catalog.KeyGenericError: "Something went wrong."})
		_, err := h.messages.Append(ctx, "conv-1", model.SenderBot, "zzz", model.ContentText)
		require.NoError(t, err)

		resp, err := h.engine.Advance(ctx, "conv-1", def, "hello", nil)
		require.NoError(t, err)
		assert.Equal(t, model.KindError, resp.Kind)
		assert.Equal(t, "Something went wrong.", resp.Content)
	})
}

func menuFlow() *flow.Definition {
	return &flow.Definition{
		Nodes: []flow.Node{
			{ID: "m", Type: flow.NodeMenuButtons, Data: map[string]any{
				"message": "How can we help?",
				"buttons": []any{"Billing", map[string]any{"label": "Support"}},
			}},
			sendMessage("b", "Billing here"),
			sendMessage("s", "Support here"),
		},
		Edges: []flow.Edge{edge("e1", "m", "b"), edge("e2", "m", "s")},
	}
}

func TestMenuRouting(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		index   *int
		content string
		node    string
	}{
		{name: "index 0", index: intPtr(0), content: "Billing here", node: "b"},
		{name: "index 1", index: intPtr(1), content: "Support here", node: "s"},
		{name: "index out of range", index: intPtr(2), content: "Sorry, I didn't understand. Please try again.", node: "m"},
		{name: "negative index", index: intPtr(-1), content: "Sorry, I didn't understand. Please try again.", node: "m"},
		{name: "label", text: "  support ", content: "Support here", node: "s"},
		{name: "number", text: "1", content: "Billing here", node: "b"},
		{name: "number out of range", text: "3", content: "Sorry, I didn't understand. Please try again.", node: "m"},
		{name: "free text", text: "hello", content: "Sorry, I didn't understand. Please try again.", node: "m"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil, nil)
			ctx := context.Background()
			def := menuFlow()

			resp, err := h.engine.Start(ctx, "conv-1", def)
			require.NoError(t, err)
			assert.Equal(t, model.KindMenu, resp.Kind)
			assert.Equal(t, []string{"Billing", "Support"}, resp.Buttons)

			resp, err = h.engine.Advance(ctx, "conv-1", def, tt.text, tt.index)
			require.NoError(t, err)
			assert.Equal(t, tt.content, resp.Content)
			assert.Equal(t, tt.node, h.position(t, "conv-1").NodeID)
		})
	}
}

func TestMenuFallbackKeepsMenuActive(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	def := menuFlow()

	_, err := h.engine.Start(ctx, "conv-1", def)
	require.NoError(t, err)

	_, err = h.engine.Advance(ctx, "conv-1", def, "", intPtr(7))
	require.NoError(t, err)

	resp, err := h.engine.Advance(ctx, "conv-1", def, "", intPtr(1))
	require.NoError(t, err)
	assert.Equal(t, "Support here", resp.Content)
}

func TestMenuWithoutButtonsActsAsMessage(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	def := &flow.Definition{
		Nodes: []flow.Node{
			{ID: "m", Type: flow.NodeMenuButtons, Data: map[string]any{"message": "Thanks for waiting"}},
			sendMessage("b", "Bye"),
		},
		Edges: []flow.Edge{edge("e1", "m", "b")},
	}

	resp, err := h.engine.Start(ctx, "conv-1", def)
	require.NoError(t, err)
	assert.Equal(t, model.KindMessage, resp.Kind)
	assert.Equal(t, "Thanks for waiting", resp.Content)

	resp, err = h.engine.Advance(ctx, "conv-1", def, "ok", nil)
	require.NoError(t, err)
	assert.Equal(t, "Bye", resp.Content)
	assert.Equal(t, "b", h.position(t, "conv-1").NodeID)
}

func collectFlow() *flow.Definition {
	return &flow.Definition{
		Nodes: []flow.Node{
			{ID: "c", Type: flow.NodeCollectInfo, Data: map[string]any{
				"userMessage":    "Your e-mail?",
				"validationType": "email",
				"variableName":   "email",
				"errorMessage":   "Invalid e-mail.",
			}},
			sendMessage("t", "Thanks"),
		},
		Edges: []flow.Edge{edge("e1", "c", "t")},
	}
}

func TestCollectInfoRoundTrip(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	def := collectFlow()

	resp, err := h.engine.Start(ctx, "conv-1", def)
	require.NoError(t, err)
	assert.Equal(t, model.KindInputRequest, resp.Kind)
	assert.Equal(t, model.InputEmail, resp.InputType)
	assert.True(t, h.position(t, "conv-1").AwaitingInput)

	resp, err = h.engine.Advance(ctx, "conv-1", def, "  ana@example.com ", nil)
	require.NoError(t, err)
	assert.Equal(t, model.KindMessage, resp.Kind)
	assert.Equal(t, "Thanks", resp.Content)

	vars, err := h.vars.Get(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"email": "ana@example.com"}, vars)

	pos := h.position(t, "conv-1")
	assert.Equal(t, "t", pos.NodeID)
	assert.False(t, pos.AwaitingInput)
}

func TestCollectInfoInvalidInputIsIdempotent(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	def := collectFlow()

	_, err := h.engine.Start(ctx, "conv-1", def)
	require.NoError(t, err)
	before := h.position(t, "conv-1")

	var replies []*model.BotResponse
	for i := 0; i < 2; i++ {
		resp, err := h.engine.Advance(ctx, "conv-1", def, "not-an-email", nil)
		require.NoError(t, err)
		replies = append(replies, resp)
	}

	assert.Equal(t, replies[0], replies[1])
	assert.Equal(t, model.KindInputRequest, replies[0].Kind)
	assert.Equal(t, "Invalid e-mail.", replies[0].Content)
	assert.True(t, replies[0].RequiresInput)

	vars, err := h.vars.Get(ctx, "conv-1")
	require.NoError(t, err)
	assert.Empty(t, vars)
	assert.Equal(t, before, h.position(t, "conv-1"))
}

func TestCollectInfoWithoutNextNode(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	def := &flow.Definition{Nodes: []flow.Node{{ID: "c", Type: flow.NodeCollectInfo, Data: map[string]any{
		"userMessage": "Name?", "variableName": "name",
	}}}}

	_, err := h.engine.Start(ctx, "conv-1", def)
	require.NoError(t, err)

	resp, err := h.engine.Advance(ctx, "conv-1", def, "Ana", nil)
	require.NoError(t, err)
	assert.Equal(t, "Sorry, I didn't understand. Please try again.", resp.Content)

	vars, err := h.vars.Get(ctx, "conv-1")
	require.NoError(t, err)
	assert.Empty(t, vars)
}

func integrationFlow() *flow.Definition {
	return &flow.Definition{
		Nodes: []flow.Node{
			{ID: "i", Type: flow.NodeIntegration, Data: map[string]any{
				"action": "invoice_lookup", "field": "document",
			}},
			sendMessage("n", "Anything else?"),
		},
		Edges: []flow.Edge{edge("e1", "i", "n")},
	}
}

func TestIntegrationAnswerConcatenatesNextReply(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	def := integrationFlow()

	resp, err := h.engine.Start(ctx, "conv-1", def)
	require.NoError(t, err)
	assert.Equal(t, model.KindInputRequest, resp.Kind)
	assert.Equal(t, "Please enter your document:", resp.Content)
	assert.Zero(t, h.gw.queryCount())

	resp, err = h.engine.Advance(ctx, "conv-1", def, " 123 ", nil)
	require.NoError(t, err)
	assert.Equal(t, model.KindMessage, resp.Kind)
	assert.Equal(t, "Invoice INV-1: amount 10.\n\nAnything else?", resp.Content)
	assert.Equal(t, []queryCall{{"invoice_lookup", "document", "123"}}, h.gw.queries)
	assert.Equal(t, "n", h.position(t, "conv-1").NodeID)

	// The customer's text is not stored as a variable.
	vars, err := h.vars.Get(ctx, "conv-1")
	require.NoError(t, err)
	assert.Empty(t, vars)
}

func TestIntegrationFailureStaysOnNode(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	def := integrationFlow()

	_, err := h.engine.Start(ctx, "conv-1", def)
	require.NoError(t, err)

	h.gw.queryResult = gateway.Result{Reason: gateway.ReasonTimeout, Message: gateway.ReasonTimeout.UserMessage()}
	resp, err := h.engine.Advance(ctx, "conv-1", def, "123", nil)
	require.NoError(t, err)
	assert.Equal(t, model.KindMessage, resp.Kind)
	assert.Equal(t, gateway.ReasonTimeout.UserMessage(), resp.Content)

	pos := h.position(t, "conv-1")
	assert.Equal(t, "i", pos.NodeID)
	assert.True(t, pos.AwaitingInput)

	h.gw.queryResult = gateway.Result{OK: true, Message: "Invoice INV-2: amount 20."}
	resp, err = h.engine.Advance(ctx, "conv-1", def, "456", nil)
	require.NoError(t, err)
	assert.Equal(t, "Invoice INV-2: amount 20.\n\nAnything else?", resp.Content)
	assert.Equal(t, 2, h.gw.queryCount())
}

func TestIntegrationReusesKnownVariable(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	def := integrationFlow()
	require.NoError(t, h.vars.Upsert(ctx, "conv-1", "document", "999"))

	resp, err := h.engine.Start(ctx, "conv-1", def)
	require.NoError(t, err)
	assert.Equal(t, model.KindMessage, resp.Kind)
	assert.Equal(t, "Invoice INV-1: amount 10.", resp.Content)
	assert.Equal(t, []queryCall{{"invoice_lookup", "document", "999"}}, h.gw.queries)

	pos := h.position(t, "conv-1")
	assert.Equal(t, "i", pos.NodeID)
	assert.False(t, pos.AwaitingInput)

	resp, err = h.engine.Advance(ctx, "conv-1", def, "ok", nil)
	require.NoError(t, err)
	assert.Equal(t, "Anything else?", resp.Content)
	assert.Equal(t, 1, h.gw.queryCount())
}

func writeFlow() *flow.Definition {
	return &flow.Definition{
		Nodes: []flow.Node{
			sendMessage("q", "Shall we update your e-mail?"),
			{ID: "w", Type: flow.NodeExecuteWriteAction, Data: map[string]any{"actionId": "update-email"}},
		},
		Edges: []flow.Edge{edge("e1", "q", "w")},
	}
}

func updateEmailAction() catalog.WriteAction {
	return catalog.WriteAction{
		ID:             "update-email",
		Name:           "Update e-mail",
		HTTPMethod:     "PUT",
		Endpoint:       "/customers/{{document}}/email",
		BodyTemplate:   `{"email":"{{email}}"}`,
		IsActive:       true,
		SuccessMessage: "Your e-mail was updated.",
	}
}

func TestWriteActionMissingVariables(t *testing.T) {
	h := newHarness(t, []catalog.WriteAction{updateEmailAction()}, nil)
	ctx := context.Background()
	def := writeFlow()

	_, err := h.engine.Start(ctx, "conv-1", def)
	require.NoError(t, err)
	require.NoError(t, h.vars.Upsert(ctx, "conv-1", "email", "ana@example.com"))

	resp, err := h.engine.Advance(ctx, "conv-1", def, "yes", nil)
	require.NoError(t, err)
	assert.Equal(t, model.KindMessage, resp.Kind)
	assert.Contains(t, resp.Content, "document")
	assert.NotContains(t, resp.Content, "email")
	assert.Zero(t, h.gw.writeCount())
	assert.Equal(t, "q", h.position(t, "conv-1").NodeID)
}

func TestWriteActionSuccess(t *testing.T) {
	h := newHarness(t, []catalog.WriteAction{updateEmailAction()}, nil)
	ctx := context.Background()
	def := writeFlow()

	_, err := h.engine.Start(ctx, "conv-1", def)
	require.NoError(t, err)
	require.NoError(t, h.vars.Upsert(ctx, "conv-1", "email", `ana"x@example.com`))
	require.NoError(t, h.vars.Upsert(ctx, "conv-1", "document", "12 3"))

	resp, err := h.engine.Advance(ctx, "conv-1", def, "yes", nil)
	require.NoError(t, err)
	assert.Equal(t, "Your e-mail was updated.", resp.Content)

	require.Len(t, h.gw.writes, 1)
	req := h.gw.writes[0]
	assert.Equal(t, "update-email", req.ActionID)
	assert.Equal(t, "PUT", req.Method)
	assert.Equal(t, "/customers/12%203/email", req.Endpoint)
	assert.JSONEq(t, `{"email":"ana\"x@example.com"}`, req.Body)
	assert.Equal(t, "w", h.position(t, "conv-1").NodeID)
}

func TestWriteActionFailure(t *testing.T) {
	h := newHarness(t, []catalog.WriteAction{updateEmailAction()}, map[string]string{
		catalog.KeyWriteFailure: "Update failed, try later.",
	})
	h.gw.writeResult = gateway.Result{Reason: gateway.ReasonFailed, StatusCode: 500}
	ctx := context.Background()
	def := writeFlow()

	_, err := h.engine.Start(ctx, "conv-1", def)
	require.NoError(t, err)
	require.NoError(t, h.vars.Upsert(ctx, "conv-1", "email", "ana@example.com"))
	require.NoError(t, h.vars.Upsert(ctx, "conv-1", "document", "123"))

	resp, err := h.engine.Advance(ctx, "conv-1", def, "yes", nil)
	require.NoError(t, err)
	assert.Equal(t, model.KindMessage, resp.Kind)
	assert.Equal(t, "Update failed, try later.", resp.Content)
	assert.Equal(t, 1, h.gw.writeCount())
	assert.Equal(t, "q", h.position(t, "conv-1").NodeID)
}

func TestWriteActionFailureReason(t *testing.T) {
	tests := []struct {
		name    string
		message string
		reason  gateway.Reason
		content string
	}{
		{name: "action message", message: "E-mail not updated.", reason: gateway.ReasonNotFound, content: "E-mail not updated."},
		{name: "not found", reason: gateway.ReasonNotFound, content: gateway.ReasonNotFound.UserMessage()},
		{name: "unauthorized", reason: gateway.ReasonUnauthorized, content: gateway.ReasonUnauthorized.UserMessage()},
		{name: "timeout", reason: gateway.ReasonTimeout, content: gateway.ReasonTimeout.UserMessage()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action := updateEmailAction()
			action.ErrorMessage = tt.message
			h := newHarness(t, []catalog.WriteAction{action}, nil)
			h.gw.writeResult = gateway.Result{Reason: tt.reason}
			ctx := context.Background()
			def := writeFlow()

			_, err := h.engine.Start(ctx, "conv-1", def)
			require.NoError(t, err)
			require.NoError(t, h.vars.Upsert(ctx, "conv-1", "email", "ana@example.com"))
			require.NoError(t, h.vars.Upsert(ctx, "conv-1", "document", "123"))

			resp, err := h.engine.Advance(ctx, "conv-1", def, "yes", nil)
			require.NoError(t, err)
			assert.Equal(t, tt.content, resp.Content)
			assert.Equal(t, "q", h.position(t, "conv-1").NodeID)
		})
	}
}

func TestWriteActionInactive(t *testing.T) {
	action := updateEmailAction()
	action.IsActive = false
	h := newHarness(t, []catalog.WriteAction{action}, nil)
	ctx := context.Background()
	def := writeFlow()

	_, err := h.engine.Start(ctx, "conv-1", def)
	require.NoError(t, err)

	resp, err := h.engine.Advance(ctx, "conv-1", def, "yes", nil)
	require.NoError(t, err)
	assert.Equal(t, model.KindError, resp.Kind)
	assert.Zero(t, h.gw.writeCount())
}

func TestTransfer(t *testing.T) {
	tests := []struct {
		name    string
		data    map[string]any
		system  map[string]string
		content string
		queue   string
	}{
		{
			name:    "system message wins",
			data:    map[string]any{"queue": "billing", "message": "Hold on"},
			system:  map[string]string{catalog.KeyTransferToAgent: "An agent will be with you."},
			content: "An agent will be with you.",
			queue:   "billing",
		},
		{
			name:    "node message",
			data:    map[string]any{"queue": "billing", "message": "Hold on"},
			content: "Hold on",
			queue:   "billing",
		},
		{
			name:    "defaults",
			data:    map[string]any{},
			content: "Please wait, you are being transferred to one of our agents.",
			queue:   flow.DefaultTransferQueue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil, tt.system)
			ctx := context.Background()
			def := &flow.Definition{
				Nodes: []flow.Node{sendMessage("a", "Hi"), {ID: "t", Type: flow.NodeTransfer, Data: tt.data}},
				Edges: []flow.Edge{edge("e1", "a", "t")},
			}

			_, err := h.engine.Start(ctx, "conv-1", def)
			require.NoError(t, err)

			resp, err := h.engine.Advance(ctx, "conv-1", def, "agent please", nil)
			require.NoError(t, err)
			assert.Equal(t, model.KindTransfer, resp.Kind)
			assert.Equal(t, tt.content, resp.Content)
			assert.Equal(t, tt.queue, resp.TransferQueue)

			pos := h.position(t, "conv-1")
			assert.Equal(t, model.StatusTransferred, pos.Status)
			assert.Equal(t, "t", pos.NodeID)

			require.Len(t, h.events.events, 1)
			ev := h.events.events[0]
			assert.Equal(t, model.EventTypeTransfer, ev.Type)
			assert.Equal(t, "conv-1", ev.ConversationID)
			assert.Equal(t, tt.queue, ev.Reason)

			_, err = h.engine.Advance(ctx, "conv-1", def, "hello?", nil)
			assert.ErrorIs(t, err, engine.ErrConversationTransferred)
		})
	}
}

func TestAdvanceSerializesPerConversation(t *testing.T) {
	h := newHarness(t, []catalog.WriteAction{{
		ID: "ping", HTTPMethod: "POST", Endpoint: "/ping", BodyTemplate: "{}", IsActive: true,
	}}, nil)
	ctx := context.Background()
	def := &flow.Definition{
		Nodes: []flow.Node{
			sendMessage("a", "Ready?"),
			{ID: "w", Type: flow.NodeExecuteWriteAction, Data: map[string]any{"actionId": "ping"}},
		},
		Edges: []flow.Edge{edge("e1", "a", "w")},
	}

	_, err := h.engine.Start(ctx, "conv-1", def)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.engine.Advance(ctx, "conv-1", def, "go", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Only the first turn sees node a; the rest find w with no way out.
	assert.Equal(t, 1, h.gw.writeCount())
	assert.Equal(t, "w", h.position(t, "conv-1").NodeID)
}

func TestConversationsAreIsolated(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	def := collectFlow()

	_, err := h.engine.Start(ctx, "conv-1", def)
	require.NoError(t, err)
	_, err = h.engine.Start(ctx, "conv-2", def)
	require.NoError(t, err)

	_, err = h.engine.Advance(ctx, "conv-1", def, "ana@example.com", nil)
	require.NoError(t, err)

	vars, err := h.vars.Get(ctx, "conv-2")
	require.NoError(t, err)
	assert.Empty(t, vars)
	assert.Equal(t, "c", h.position(t, "conv-2").NodeID)
}
