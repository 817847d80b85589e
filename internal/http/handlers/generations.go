package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"mediagen/internal/domain"
)

type attemptView struct {
	Sequence   int    `json:"sequence"`
	Model      string `json:"model"`
	Family     string `json:"family"`
	Status     string `json:"status"`
	ErrorKind  string `json:"errorKind,omitempty"`
	HTTPStatus int    `json:"httpStatus,omitempty"`
	ProviderID string `json:"providerRequestId,omitempty"`
	ElapsedMS  int64  `json:"elapsedMs"`
	CreatedAt  string `json:"createdAt"`
}

type generationView struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId,omitempty"`
	SessionID string         `json:"sessionId"`
	Prompt    string         `json:"prompt"`
	Model     string         `json:"model"`
	Status    string         `json:"status"`
	OutputURL string         `json:"outputUrl,omitempty"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt string         `json:"createdAt"`
	UpdatedAt string         `json:"updatedAt"`
	ExpiresAt string         `json:"expiresAt,omitempty"`
	Attempts  []attemptView  `json:"attempts"`
}

// GetGeneration serves GET /v1/generations/{id}.
func (a *App) GetGeneration(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if a.records == nil {
		a.json(w, http.StatusServiceUnavailable, map[string]any{"success": false, "error": "records unavailable"})
		return
	}
	rec, err := a.records.GetGeneration(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.json(w, http.StatusNotFound, map[string]any{"success": false, "error": "generation not found"})
			return
		}
		a.logger.Error().Err(err).Str("generation_id", id).Msg("records: get failed")
		a.json(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "failed to load generation"})
		return
	}
	attempts, err := a.records.ListAttempts(r.Context(), id)
	if err != nil {
		a.logger.Warn().Err(err).Str("generation_id", id).Msg("records: list attempts failed")
	}

	view := generationView{
		ID:        rec.ID,
		UserID:    rec.UserID,
		SessionID: rec.SessionID,
		Prompt:    rec.Prompt,
		Model:     rec.Model,
		Status:    string(rec.Status),
		OutputURL: rec.OutputURL,
		Metadata:  rec.Metadata,
		CreatedAt: rec.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: rec.UpdatedAt.UTC().Format(time.RFC3339),
		Attempts:  make([]attemptView, 0, len(attempts)),
	}
	if view.Metadata == nil {
		view.Metadata = map[string]any{}
	}
	if rec.ExpiresAt != nil {
		view.ExpiresAt = rec.ExpiresAt.UTC().Format(time.RFC3339)
	}
	for _, at := range attempts {
		view.Attempts = append(view.Attempts, attemptView{
			Sequence:   at.Sequence,
			Model:      at.Model,
			Family:     at.Family,
			Status:     string(at.Status),
			ErrorKind:  at.ErrorKind,
			HTTPStatus: at.HTTPStatus,
			ProviderID: at.ProviderID,
			ElapsedMS:  at.Elapsed.Milliseconds(),
			CreatedAt:  at.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	a.json(w, http.StatusOK, map[string]any{"success": true, "data": view})
}
