package generation

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"mediagen/internal/providers/fal"
)

var contentPhrases = []string{
	"gemini could not generate an image",
	"content could not be processed",
	"flagged by a content checker",
	"content policy",
	"content is not passing",
	"openai could not generate",
	"rejected by content filter",
}

var lengthPhrases = []string{"prompt too long", "input too long", "too long"}

var validationPhrases = []string{
	"invalid request to downstream service",
	"validation error",
	"invalid parameter",
}

// ClassifyBody maps a provider error answer to a Kind. Body phrases are
// checked before the status code; moderation arrives as both 400 and 422.
func ClassifyBody(status int, body []byte) Kind {
	text := strings.ToLower(diagnosticText(body))

	if hasDetailType(body, "content_policy_violation") || containsAnyPhrase(text, contentPhrases) {
		return KindContentPolicyViolation
	}
	if containsAnyPhrase(text, lengthPhrases) || hasDetailType(body, "string_too_long") {
		return KindPromptTooLong
	}
	if containsAnyPhrase(text, validationPhrases) {
		return KindValidation
	}
	switch status {
	case http.StatusUnprocessableEntity:
		if hasDetailLocation(body) {
			return KindValidation
		}
		return KindContentPolicyViolation
	case http.StatusBadRequest:
		return KindValidation
	}
	return KindProvider
}

// FromProvider converts an error returned by the provider client.
func FromProvider(err error) *Error {
	if err == nil {
		return nil
	}
	var ge *Error
	if errors.As(err, &ge) {
		return ge
	}
	var apiErr *fal.APIError
	if errors.As(err, &apiErr) {
		kind := ClassifyBody(apiErr.StatusCode, apiErr.Body)
		e := newError(kind, "", fal.Message(apiErr.Body))
		if kind == KindProvider && apiErr.StatusCode >= http.StatusBadRequest {
			e.Status = apiErr.StatusCode
		}
		if gjson.ValidBytes(apiErr.Body) {
			e.Diagnostic = append([]byte(nil), apiErr.Body...)
		}
		e.Err = err
		return e
	}
	if errors.Is(err, context.Canceled) {
		e := newError(KindProvider, "Request cancelled", "The request was cancelled before the provider answered.")
		e.Transport = true
		e.Err = err
		return e
	}
	e := newError(KindProvider, "", err.Error())
	e.Transport = true
	e.Err = err
	return e
}

func diagnosticText(body []byte) string {
	if !gjson.ValidBytes(body) {
		return string(body)
	}
	parts := []string{fal.Message(body)}
	gjson.GetBytes(body, "detail").ForEach(func(_, v gjson.Result) bool {
		if msg := v.Get("msg"); msg.Exists() {
			parts = append(parts, msg.String())
		}
		return true
	})
	for _, path := range []string{"error.message", "error", "message"} {
		if v := gjson.GetBytes(body, path); v.Type == gjson.String {
			parts = append(parts, v.String())
		}
	}
	return strings.Join(parts, " ")
}

func hasDetailType(body []byte, want string) bool {
	found := false
	gjson.GetBytes(body, "detail").ForEach(func(_, v gjson.Result) bool {
		if v.Get("type").String() == want {
			found = true
			return false
		}
		return true
	})
	return found
}

func hasDetailLocation(body []byte) bool {
	found := false
	gjson.GetBytes(body, "detail").ForEach(func(_, v gjson.Result) bool {
		if v.Get("loc").Exists() {
			found = true
			return false
		}
		return true
	})
	return found
}

func containsAnyPhrase(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
