package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"mediagen/internal/generation"
)

// Reference images may arrive inline as data URIs.
const maxRequestBody = 32 << 20

const (
	endFrameModel           = "fal-ai/veo3.1/first-last-frame-to-video"
	endFrameDefaultPrompt   = "Smooth cinematic transition from the first frame to the last frame"
	endFrameDefaultDuration = "4"
)

// Generate serves POST /v1/generate.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	meta := a.meta(r)
	var req generation.Request
	if err := decodeBody(w, r, &req); err != nil {
		a.fail(w, meta.RequestID, err)
		return
	}
	a.run(w, r, meta, req)
}

type endFrameRequest struct {
	StartFrame string          `json:"startFrame"`
	EndFrame   string          `json:"endFrame"`
	Prompt     string          `json:"prompt"`
	Duration   generation.Hint `json:"duration"`
}

// EndFrame serves POST /v1/endframe: a transition video between two frames.
func (a *App) EndFrame(w http.ResponseWriter, r *http.Request) {
	meta := a.meta(r)
	var body endFrameRequest
	if err := decodeBody(w, r, &body); err != nil {
		a.fail(w, meta.RequestID, err)
		return
	}
	for _, f := range []struct{ name, value string }{{"startFrame", body.StartFrame}, {"endFrame", body.EndFrame}} {
		if strings.TrimSpace(f.value) == "" {
			a.fail(w, meta.RequestID, &generation.Error{
				Kind:    generation.KindMissingRequiredField,
				Title:   "Missing required field: " + f.name,
				Message: "startFrame and endFrame are both required.",
			})
			return
		}
	}

	req := generation.Request{
		Model:         endFrameModel,
		Prompt:        strings.TrimSpace(body.Prompt),
		FirstFrameURL: body.StartFrame,
		LastFrameURL:  body.EndFrame,
		Duration:      body.Duration,
	}
	if req.Prompt == "" {
		req.Prompt = endFrameDefaultPrompt
	}
	if req.Duration == "" {
		req.Duration = endFrameDefaultDuration
	}
	a.run(w, r, meta, req)
}

func (a *App) run(w http.ResponseWriter, r *http.Request, meta generation.Meta, req generation.Request) {
	if a.generator == nil {
		a.fail(w, meta.RequestID, &generation.Error{Kind: generation.KindProvider, Message: "Generation is not configured."})
		return
	}
	out, err := a.generator.Generate(r.Context(), meta, req)
	if err != nil {
		a.fail(w, meta.RequestID, err)
		return
	}
	a.json(w, http.StatusOK, generation.NewSuccessEnvelope(out, a.now()))
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(v); err != nil {
		msg := "Request body must be a JSON object."
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			msg = "Request body is too large."
		}
		return &generation.Error{Kind: generation.KindValidation, Title: "Invalid request body", Message: msg, Err: err}
	}
	return nil
}
