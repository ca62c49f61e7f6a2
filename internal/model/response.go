// Package model defines data structures shared by the flow engine and its collaborators.
package model

// ResponseKind is the kind of reply the engine produces for a turn.
type ResponseKind string

const (
	KindMessage      ResponseKind = "message"
	KindMenu         ResponseKind = "menu"
	KindInputRequest ResponseKind = "input_request"
	KindTransfer     ResponseKind = "transfer"
	KindError        ResponseKind = "error"
)

// InputType names the rule a customer reply is validated against.
type InputType string

const (
	InputText  InputType = "text"
	InputEmail InputType = "email"
	InputPhone InputType = "phone"
	InputRegex InputType = "regex"
)

// BotResponse is the reply of one interpreter turn. It is not persisted as
// its own entity: the engine stores its content as an outbound message and
// hands it back to the transport channel.
type BotResponse struct {
	Kind          ResponseKind `json:"kind"`
	Content       string       `json:"content"`
	Buttons       []string     `json:"buttons,omitempty"`
	RequiresInput bool         `json:"requires_input,omitempty"`
	InputType     InputType    `json:"input_type,omitempty"`
	TransferQueue string       `json:"transfer_queue,omitempty"`
}

// ContentType returns the content type the reply is stored with.
func (r *BotResponse) ContentType() ContentType {
	if r.Kind == KindMenu && len(r.Buttons) > 0 {
		return ContentMenu
	}
	return ContentText
}
