package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"mediagen/internal/domain"
	"mediagen/internal/generation"
	"mediagen/internal/infra"
	"mediagen/internal/middleware"
)

// Generator runs one orchestrated generation.
type Generator interface {
	Generate(ctx context.Context, meta generation.Meta, req generation.Request) (*generation.Outcome, error)
}

// RecordReader reads stored generation records.
type RecordReader interface {
	GetGeneration(ctx context.Context, id string) (*domain.GenerationRecord, error)
	ListAttempts(ctx context.Context, generationID string) ([]domain.GenerationAttempt, error)
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	Generator Generator
	Records   RecordReader
	DB        Pinger
	Logger    *infra.Logger
	Now       func() time.Time
}

type App struct {
	generator Generator
	records   RecordReader
	db        Pinger
	logger    zerolog.Logger
	now       func() time.Time
}

func NewApp(opts Options) *App {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &App{
		generator: opts.Generator,
		records:   opts.Records,
		db:        opts.DB,
		logger:    infra.LoggerOrDiscard(opts.Logger),
		now:       now,
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// fail renders err as an error envelope with the matching status code.
func (a *App) fail(w http.ResponseWriter, requestID string, err error) {
	env := generation.NewErrorEnvelope(err, requestID, a.now())
	a.json(w, env.Status, env)
}

func (a *App) meta(r *http.Request) generation.Meta {
	ctx := r.Context()
	id := middleware.IdentityFromContext(ctx)
	return generation.Meta{
		RequestID:       middleware.RequestIDFromContext(ctx),
		ClientRequestID: middleware.ClientRequestIDFromContext(ctx),
		UserID:          id.UserID,
		SessionID:       id.SessionID,
		Country:         middleware.CountryFromContext(ctx),
	}
}
