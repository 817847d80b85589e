package generation

import (
	"encoding/json"
	"time"
)

// SuccessEnvelope is the body returned for a completed generation.
type SuccessEnvelope struct {
	Success         bool            `json:"success"`
	Data            json.RawMessage `json:"data"`
	RequestID       string          `json:"requestId"`
	Status          string          `json:"status"`
	Model           string          `json:"model"`
	OutputURL       string          `json:"outputUrl,omitempty"`
	Prompt          string          `json:"prompt"`
	OriginalPrompt  string          `json:"originalPrompt,omitempty"`
	PromptOptimized bool            `json:"promptOptimized,omitempty"`
	Warnings        []string        `json:"warnings,omitempty"`
	Suggestions     []string        `json:"optimizationSuggestions,omitempty"`
	FallbackUsed    string          `json:"fallbackUsed,omitempty"`
	OriginalModel   string          `json:"originalModel,omitempty"`
	Duration        int64           `json:"duration"`
	Timestamp       string          `json:"timestamp"`
}

// ErrorEnvelope is the body returned for any failed generation.
type ErrorEnvelope struct {
	Success     bool            `json:"success"`
	Error       string          `json:"error"`
	Kind        Kind            `json:"kind"`
	Message     string          `json:"message,omitempty"`
	Details     string          `json:"details,omitempty"`
	Status      int             `json:"status"`
	Model       string          `json:"model"`
	RequestID   string          `json:"requestId,omitempty"`
	Suggestions []string        `json:"suggestions,omitempty"`
	Diagnostic  json.RawMessage `json:"diagnostic,omitempty"`
	Timestamp   string          `json:"timestamp"`
}

// NewSuccessEnvelope renders out.
func NewSuccessEnvelope(out *Outcome, now time.Time) SuccessEnvelope {
	data := out.Data
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	return SuccessEnvelope{
		Success:         true,
		Data:            data,
		RequestID:       out.RequestID,
		Status:          "completed",
		Model:           out.Model,
		OutputURL:       out.OutputURL,
		Prompt:          out.Prompt,
		OriginalPrompt:  out.OriginalPrompt,
		PromptOptimized: out.PromptOptimized,
		Warnings:        out.Warnings,
		Suggestions:     out.Suggestions,
		FallbackUsed:    out.FallbackUsed,
		OriginalModel:   out.OriginalModel,
		Duration:        out.Elapsed.Milliseconds(),
		Timestamp:       now.UTC().Format(time.RFC3339),
	}
}

// NewErrorEnvelope renders err, converting it to *Error first.
func NewErrorEnvelope(err error, requestID string, now time.Time) ErrorEnvelope {
	e := AsError(err)
	title := e.Title
	if title == "" {
		title = defaultTitle(e.Kind)
	}
	status := e.Status
	if status == 0 {
		status = defaultStatus(e.Kind)
	}
	return ErrorEnvelope{
		Success:     false,
		Error:       title,
		Kind:        e.Kind,
		Message:     e.Message,
		Details:     e.Details,
		Status:      status,
		Model:       e.Model,
		RequestID:   requestID,
		Suggestions: e.Suggestions,
		Diagnostic:  e.Diagnostic,
		Timestamp:   now.UTC().Format(time.RFC3339),
	}
}
