// Package validator checks raw customer input against the rules a
// collect_info node can ask for.
package validator

import (
	"regexp"
	"strings"

	"github.com/capitalize-ai/support-flow/internal/model"
)

// Result is the outcome of a validation. Error is empty when Valid is true.
type Result struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	// optional country code, optional area code (parenthesized or bare), 8-9 digit number
	phonePattern = regexp.MustCompile(`^(\+?\d{1,3})?(\(\d{2,3}\)|\d{2})?\d{8,9}$`)
	phoneStrip   = strings.NewReplacer(" ", "", "-", "", ".", "")
)

func ok() Result { return Result{Valid: true} }

func fail(msg string) Result { return Result{Error: msg} }

// Text accepts any non-empty input once trimmed.
func Text(input string) Result {
	if strings.TrimSpace(input) == "" {
		return fail("Please type a response.")
	}
	return ok()
}

// Email accepts a single-@ address whose domain contains a dot.
func Email(input string) Result {
	if !emailPattern.MatchString(strings.TrimSpace(input)) {
		return fail("Please enter a valid e-mail address.")
	}
	return ok()
}

// Phone accepts an optional country code, an optional area code and an 8 to
// 9 digit number. Spaces and dashes are ignored.
func Phone(input string) Result {
	if !phonePattern.MatchString(phoneStrip.Replace(strings.TrimSpace(input))) {
		return fail("Please enter a valid phone number.")
	}
	return ok()
}

// Regex matches the trimmed input against a node-supplied pattern.
func Regex(input, pattern string) Result {
	if pattern == "" {
		return fail("Validation pattern is not configured.")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fail("Validation pattern is invalid.")
	}
	if !re.MatchString(strings.TrimSpace(input)) {
		return fail("The value does not match the expected format.")
	}
	return ok()
}

// Validate runs the rule named by validationType. Unknown types fall back to
// the text rule.
func Validate(validationType, input, pattern string) Result {
	switch model.InputType(strings.ToLower(strings.TrimSpace(validationType))) {
	case model.InputEmail:
		return Email(input)
	case model.InputPhone:
		return Phone(input)
	case model.InputRegex:
		return Regex(input, pattern)
	default:
		return Text(input)
	}
}
