package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Kind is the abstract failure classification reported to callers.
type Kind string

const (
	KindMissingRequiredField   Kind = "MissingRequiredField"
	KindPromptTooLong          Kind = "PromptTooLong"
	KindContentPolicyViolation Kind = "ContentPolicyViolation"
	KindValidation             Kind = "ValidationError"
	KindTimeout                Kind = "Timeout"
	KindProvider               Kind = "ProviderError"
)

// Error is the single error type that crosses the orchestrator boundary.
type Error struct {
	Kind    Kind
	Status  int
	Title   string
	Message string
	Details string
	// Diagnostic is the provider's raw error body, when there was one.
	Diagnostic json.RawMessage
	Model      string
	// Transport marks failures where the provider never answered.
	Transport bool
	// Exhausted marks a failure reported after every fallback candidate failed.
	Exhausted   bool
	Suggestions []string
	Err         error
}

func (e *Error) Error() string {
	msg := e.Title
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Message != "" && e.Message != msg {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// FallbackEligible reports whether the kind may be retried on another model.
func (k Kind) FallbackEligible() bool {
	return k == KindContentPolicyViolation || k == KindPromptTooLong
}

func defaultStatus(k Kind) int {
	switch k {
	case KindContentPolicyViolation:
		return http.StatusUnprocessableEntity
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindProvider:
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

func defaultTitle(k Kind) string {
	switch k {
	case KindMissingRequiredField:
		return "Missing required field"
	case KindPromptTooLong:
		return "Prompt too long"
	case KindContentPolicyViolation:
		return "Content policy violation"
	case KindValidation:
		return "Invalid request"
	case KindTimeout:
		return "Generation timed out"
	default:
		return "Generation failed"
	}
}

func newError(k Kind, title, message string) *Error {
	if title == "" {
		title = defaultTitle(k)
	}
	return &Error{Kind: k, Status: defaultStatus(k), Title: title, Message: message}
}

// AsError converts any error into *Error. Unknown errors become ProviderError.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var ge *Error
	if errors.As(err, &ge) {
		return ge
	}
	if errors.Is(err, context.DeadlineExceeded) {
		e := newError(KindTimeout, "", "The request deadline passed before the provider answered.")
		e.Err = err
		return e
	}
	e := newError(KindProvider, "", err.Error())
	e.Err = err
	return e
}
