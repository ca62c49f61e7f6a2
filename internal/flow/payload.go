package flow

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// PlaceholderMessage is shown when a message node has no text configured.
const PlaceholderMessage = "Message not configured."

// DefaultTransferQueue is used when a transfer node names no queue.
const DefaultTransferQueue = "geral"

// Payload is the typed data of a node. The set of implementations is closed:
// SendMessage, MenuButtons, Integration, Transfer, CollectInfo and
// ExecuteWriteAction.
type Payload interface {
	NodeType() NodeType
	// DisplayText is the text a customer sees when the node is shown.
	DisplayText() string
}

// SendMessage shows a fixed message.
type SendMessage struct {
	Message string `mapstructure:"message"`
}

func (SendMessage) NodeType() NodeType { return NodeSendMessage }

func (p SendMessage) DisplayText() string {
	if strings.TrimSpace(p.Message) == "" {
		return PlaceholderMessage
	}
	return p.Message
}

// MenuButtons shows a message with a list of options.
type MenuButtons struct {
	Message string   `mapstructure:"message"`
	Buttons []string `mapstructure:"buttons"`
}

func (MenuButtons) NodeType() NodeType { return NodeMenuButtons }

func (p MenuButtons) DisplayText() string {
	if strings.TrimSpace(p.Message) == "" {
		return PlaceholderMessage
	}
	return p.Message
}

// Integration queries the ERP with one customer-supplied field.
type Integration struct {
	Action  string `mapstructure:"action"`
	Field   string `mapstructure:"field"`
	Message string `mapstructure:"message"`
}

func (Integration) NodeType() NodeType { return NodeIntegration }

// DisplayText is the prompt asking for the integration's input field.
func (p Integration) DisplayText() string {
	if strings.TrimSpace(p.Message) != "" {
		return p.Message
	}
	return fmt.Sprintf("Please enter your %s:", humanize(p.Field))
}

// Transfer hands the conversation to a human queue.
type Transfer struct {
	Queue   string `mapstructure:"queue"`
	Message string `mapstructure:"message"`
}

func (Transfer) NodeType() NodeType { return NodeTransfer }

func (p Transfer) DisplayText() string { return p.Message }

// QueueName returns the configured queue or the default one.
func (p Transfer) QueueName() string {
	if strings.TrimSpace(p.Queue) == "" {
		return DefaultTransferQueue
	}
	return p.Queue
}

// CollectInfo asks for a value, validates it and stores it as a
// conversation variable.
type CollectInfo struct {
	UserMessage    string `mapstructure:"userMessage"`
	ValidationType string `mapstructure:"validationType"`
	VariableName   string `mapstructure:"variableName"`
	ErrorMessage   string `mapstructure:"errorMessage"`
	RegexPattern   string `mapstructure:"regexPattern"`
}

func (CollectInfo) NodeType() NodeType { return NodeCollectInfo }

func (p CollectInfo) DisplayText() string { return p.UserMessage }

// ExecuteWriteAction runs a templated write against the ERP.
type ExecuteWriteAction struct {
	ActionID string `mapstructure:"actionId"`
	Message  string `mapstructure:"message"`
}

func (ExecuteWriteAction) NodeType() NodeType { return NodeExecuteWriteAction }

func (p ExecuteWriteAction) DisplayText() string { return p.Message }

// Payload decodes the node's data into its typed payload.
func (n *Node) Payload() (Payload, error) {
	var out Payload
	switch n.Type {
	case NodeSendMessage:
		var p SendMessage
		if err := decode(n.Data, &p); err != nil {
			return nil, fmt.Errorf("node %s: %w", n.ID, err)
		}
		out = p
	case NodeMenuButtons:
		var p MenuButtons
		if err := decode(n.Data, &p); err != nil {
			return nil, fmt.Errorf("node %s: %w", n.ID, err)
		}
		out = p
	case NodeIntegration:
		var p Integration
		if err := decode(n.Data, &p); err != nil {
			return nil, fmt.Errorf("node %s: %w", n.ID, err)
		}
		out = p
	case NodeTransfer:
		var p Transfer
		if err := decode(n.Data, &p); err != nil {
			return nil, fmt.Errorf("node %s: %w", n.ID, err)
		}
		out = p
	case NodeCollectInfo:
		var p CollectInfo
		if err := decode(n.Data, &p); err != nil {
			return nil, fmt.Errorf("node %s: %w", n.ID, err)
		}
		out = p
	case NodeExecuteWriteAction:
		var p ExecuteWriteAction
		if err := decode(n.Data, &p); err != nil {
			return nil, fmt.Errorf("node %s: %w", n.ID, err)
		}
		out = p
	default:
		return nil, fmt.Errorf("node %s: unknown node type %q", n.ID, n.Type)
	}
	return out, nil
}

func decode(data map[string]any, target any) error {
	if data == nil {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       buttonLabelHook,
		WeaklyTypedInput: true,
		Result:           target,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(data)
}

// buttonLabelHook lets the editor store buttons either as plain strings or
// as objects carrying a label.
func buttonLabelHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.Map || to.Kind() != reflect.String {
		return data, nil
	}
	m, ok := data.(map[string]any)
	if !ok {
		return data, nil
	}
	for _, key := range []string{"label", "text", "title"} {
		if v, ok := m[key].(string); ok {
			return v, nil
		}
	}
	return "", nil
}

func humanize(field string) string {
	if field == "" {
		return "information"
	}
	return strings.ReplaceAll(field, "_", " ")
}
