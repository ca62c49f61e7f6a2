package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/capitalize-ai/support-flow/internal/catalog"
	"github.com/capitalize-ai/support-flow/internal/flow"
	"github.com/capitalize-ai/support-flow/internal/gateway"
	"github.com/capitalize-ai/support-flow/internal/model"
	"github.com/capitalize-ai/support-flow/internal/placeholder"
)

const (
	defaultFallbackText     = "Sorry, I didn't understand. Please try again."
	defaultGenericErrorText = "Sorry, we could not continue this conversation. Please start again."
	defaultTransferText     = "Please wait, you are being transferred to one of our agents."
	defaultWriteSuccessText = "Your request was completed successfully."
	missingVariablesFormat  = "We still need some information before completing your request: %s."

	// Separates an integration result from the reply of the node that follows it.
	replySeparator = "\n\n"
)

// step is the result of processing one node.
type step struct {
	node     *flow.Node
	response model.BotResponse
	// awaiting means the node consumes the customer's next message as input.
	awaiting bool
	terminal bool
	// failure is a taxonomy error already rendered into response. A failed
	// step never moves the conversation.
	failure error
}

func (e *Engine) process(ctx context.Context, node *flow.Node, vars map[string]string) (step, error) {
	payload, err := node.Payload()
	if err != nil {
		return e.failed(ctx, node, configMissing("%v", err)), nil
	}

	switch p := payload.(type) {
	case flow.SendMessage:
		return step{node: node, response: model.BotResponse{
			Kind:    model.KindMessage,
			Content: p.DisplayText(),
		}}, nil

	case flow.MenuButtons:
		kind := model.KindMenu
		if len(p.Buttons) == 0 {
			kind = model.KindMessage
		}
		return step{node: node, response: model.BotResponse{
			Kind:    kind,
			Content: p.DisplayText(),
			Buttons: p.Buttons,
		}}, nil

	case flow.Integration:
		return e.processIntegration(ctx, node, p, vars), nil

	case flow.Transfer:
		return e.processTransfer(ctx, node, p), nil

	case flow.CollectInfo:
		return step{node: node, awaiting: true, response: model.BotResponse{
			Kind:          model.KindInputRequest,
			Content:       p.DisplayText(),
			RequiresInput: true,
			InputType:     collectInputType(p.ValidationType),
		}}, nil

	case flow.ExecuteWriteAction:
		return e.processWriteAction(ctx, node, p, vars)
	}

	return e.failed(ctx, node, configMissing("node %s has unsupported type %q", node.ID, node.Type)), nil
}

func (e *Engine) processIntegration(ctx context.Context, node *flow.Node, p flow.Integration, vars map[string]string) step {
	if p.Field == "" {
		return e.failed(ctx, node, configMissing("integration node %s has no input field", node.ID))
	}

	value := strings.TrimSpace(vars[p.Field])
	if value == "" {
		return step{node: node, awaiting: true, response: model.BotResponse{
			Kind:          model.KindInputRequest,
			Content:       p.DisplayText(),
			RequiresInput: true,
			InputType:     inputTypeForField(p.Field),
		}}
	}

	res := e.gateway.Query(ctx, p.Action, p.Field, value)
	if !res.OK {
		return step{
			node:     node,
			response: model.BotResponse{Kind: model.KindMessage, Content: res.Message},
			failure:  &ExternalCallFailedError{Action: p.Action, Reason: res.Reason},
		}
	}
	return step{node: node, response: model.BotResponse{Kind: model.KindMessage, Content: res.Message}}
}

func (e *Engine) processTransfer(ctx context.Context, node *flow.Node, p flow.Transfer) step {
	content := e.systemText(ctx, catalog.KeyTransferToAgent, "")
	if content == "" {
		content = p.Message
	}
	if content == "" {
		content = defaultTransferText
	}
	return step{node: node, terminal: true, response: model.BotResponse{
		Kind:          model.KindTransfer,
		Content:       content,
		TransferQueue: p.QueueName(),
	}}
}

func (e *Engine) processWriteAction(ctx context.Context, node *flow.Node, p flow.ExecuteWriteAction, vars map[string]string) (step, error) {
	if p.ActionID == "" {
		return e.failed(ctx, node, configMissing("write action node %s has no action id", node.ID)), nil
	}

	action, found, err := e.writeActions.FindByID(ctx, p.ActionID)
	if err != nil {
		return step{}, fmt.Errorf("failed to load write action %s: %w", p.ActionID, err)
	}
	if !found {
		return e.failed(ctx, node, configMissing("write action %s not found or inactive", p.ActionID)), nil
	}

	if missing := placeholder.Missing(e.referencedVariables(action), vars); len(missing) > 0 {
		e.logger.Info("write action skipped, variables missing",
			zap.String("action", action.ID),
			zap.Strings("missing", missing),
		)
		return step{
			node: node,
			response: model.BotResponse{
				Kind:    model.KindMessage,
				Content: fmt.Sprintf(missingVariablesFormat, strings.Join(missing, ", ")),
			},
			failure: &MissingVariablesError{Names: missing},
		}, nil
	}

	res := e.gateway.Write(ctx, gateway.WriteRequest{
		ActionID: action.ID,
		Method:   action.HTTPMethod,
		Endpoint: placeholder.Render(action.Endpoint, vars, placeholder.Path),
		Body:     placeholder.Render(action.BodyTemplate, vars, placeholder.JSON),
	})
	if !res.OK {
		text := action.ErrorMessage
		if text == "" {
			text = e.systemText(ctx, catalog.KeyWriteFailure, res.Reason.UserMessage())
		}
		return step{
			node:     node,
			response: model.BotResponse{Kind: model.KindMessage, Content: text},
			failure:  &ExternalCallFailedError{Action: action.ID, Reason: res.Reason},
		}, nil
	}

	text := action.SuccessMessage
	if text == "" {
		text = e.systemText(ctx, catalog.KeyWriteSuccess, defaultWriteSuccessText)
	}
	return step{node: node, response: model.BotResponse{Kind: model.KindMessage, Content: text}}, nil
}

// referencedVariables lists placeholders of the body template and the
// endpoint, body first.
func (e *Engine) referencedVariables(action *catalog.WriteAction) []string {
	names := e.writeActions.ExtractVariableNames(action.BodyTemplate)
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		seen[n] = true
	}
	for _, n := range e.writeActions.ExtractVariableNames(action.Endpoint) {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	return names
}

// failed renders a taxonomy error into a customer-facing response.
func (e *Engine) failed(ctx context.Context, node *flow.Node, err error) step {
	return step{node: node, response: e.errorResponse(ctx, err), failure: err}
}

func (e *Engine) errorResponse(ctx context.Context, err error) model.BotResponse {
	var callErr *ExternalCallFailedError
	if errors.As(err, &callErr) {
		return model.BotResponse{Kind: model.KindMessage, Content: callErr.Reason.UserMessage()}
	}
	// NoContextFound, UnknownState and ConfigurationMissing share the generic copy.
	return model.BotResponse{
		Kind:    model.KindError,
		Content: e.systemText(ctx, catalog.KeyGenericError, defaultGenericErrorText),
	}
}

func (e *Engine) fallbackResponse(ctx context.Context) model.BotResponse {
	return model.BotResponse{
		Kind:    model.KindMessage,
		Content: e.systemText(ctx, catalog.KeyFallback, defaultFallbackText),
	}
}

func (e *Engine) systemText(ctx context.Context, key, fallback string) string {
	if e.systemMessages == nil {
		return fallback
	}
	text, ok, err := e.systemMessages.ContentFor(ctx, key)
	if err != nil {
		e.logger.Warn("failed to load system message", zap.String("key", key), zap.Error(err))
		return fallback
	}
	if !ok {
		return fallback
	}
	return text
}

func collectInputType(validationType string) model.InputType {
	switch t := model.InputType(strings.ToLower(strings.TrimSpace(validationType))); t {
	case model.InputEmail, model.InputPhone, model.InputRegex:
		return t
	default:
		return model.InputText
	}
}

func inputTypeForField(field string) model.InputType {
	f := strings.ToLower(field)
	switch {
	case strings.Contains(f, "email"), strings.Contains(f, "e-mail"):
		return model.InputEmail
	case strings.Contains(f, "phone"), strings.Contains(f, "telefone"),
		strings.Contains(f, "celular"), strings.Contains(f, "whatsapp"):
		return model.InputPhone
	default:
		return model.InputText
	}
}
