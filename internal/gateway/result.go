package gateway

// Reason classifies a failed external call.
type Reason string

const (
	ReasonUnavailable   Reason = "service_unavailable"
	ReasonUnauthorized  Reason = "authentication_error"
	ReasonNotFound      Reason = "not_found"
	ReasonTimeout       Reason = "timeout"
	ReasonFailed        Reason = "failed"
	ReasonNotConfigured Reason = "not_configured"
)

var userMessages = map[Reason]string{
	ReasonUnavailable:   "The service is temporarily unavailable. Please try again in a few minutes.",
	ReasonUnauthorized:  "We could not authenticate with the service. Please try again later.",
	ReasonNotFound:      "We could not find a record for the information provided. Please check it and try again.",
	ReasonTimeout:       "The service took too long to respond. Please try again.",
	ReasonFailed:        "We could not complete your request. Please try again.",
	ReasonNotConfigured: "This service is not available right now. Please contact support.",
}

// UserMessage returns customer-facing text for the failure.
func (r Reason) UserMessage() string {
	if msg, ok := userMessages[r]; ok {
		return msg
	}
	return userMessages[ReasonFailed]
}

// 401, 404 and configuration problems will not change on a second attempt.
func (r Reason) retryable() bool {
	switch r {
	case ReasonUnauthorized, ReasonNotFound, ReasonNotConfigured:
		return false
	}
	return true
}

// Result is the outcome of one gateway call. Message is the formatted reply
// on success and the customer-facing failure text otherwise.
type Result struct {
	OK         bool
	Message    string
	Reason     Reason
	StatusCode int
}
