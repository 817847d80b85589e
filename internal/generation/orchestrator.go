package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mediagen/internal/domain"
	"mediagen/internal/infra"
	"mediagen/internal/metrics"
	"mediagen/internal/profile"
	"mediagen/internal/prompt"
)

// RecordStore persists generation records. Writes are best effort.
type RecordStore interface {
	AttemptRecorder
	CreateGeneration(ctx context.Context, rec domain.GenerationRecord) error
	FinalizeGeneration(ctx context.Context, id string, out domain.GenerationOutcome) error
}

// Meta is request context resolved at the edge.
type Meta struct {
	RequestID       string
	ClientRequestID string
	UserID          string
	SessionID       string
	Country         string
}

// Outcome is a successful orchestrated generation.
type Outcome struct {
	RequestID       string
	Model           string
	OriginalModel   string
	FallbackUsed    string
	Data            json.RawMessage
	OutputURL       string
	Prompt          string
	OriginalPrompt  string
	PromptOptimized bool
	Warnings        []string
	Suggestions     []string
	Elapsed         time.Duration
}

// OrchestratorOptions wires an Orchestrator.
type OrchestratorOptions struct {
	Normalizer    *Normalizer
	Dispatcher    *Dispatcher
	Resolver      *Resolver
	Records       RecordStore
	Logger        *infra.Logger
	AnonRetention time.Duration
	Now           func() time.Time
}

// Orchestrator runs one request end to end: validation, prompt cleanup,
// normalization, dispatch, fallback and record keeping.
type Orchestrator struct {
	normalizer *Normalizer
	dispatcher *Dispatcher
	resolver   *Resolver
	records    RecordStore
	logger     zerolog.Logger
	retention  time.Duration
	now        func() time.Time
}

// NewOrchestrator constructs an orchestrator. A nil resolver is built from
// the normalizer and dispatcher.
func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	normalizer := opts.Normalizer
	if normalizer == nil {
		normalizer = NewNormalizer(nil, nil)
	}
	resolver := opts.Resolver
	if resolver == nil {
		resolver = NewResolver(normalizer, opts.Dispatcher, opts.Logger)
	}
	return &Orchestrator{
		normalizer: normalizer,
		dispatcher: opts.Dispatcher,
		resolver:   resolver,
		records:    opts.Records,
		logger:     infra.LoggerOrDiscard(opts.Logger),
		retention:  opts.AnonRetention,
		now:        now,
	}
}

// Generate runs req. Every call finishes its record exactly once, and every
// failure comes back as *Error.
func (o *Orchestrator) Generate(ctx context.Context, meta Meta, req Request) (out *Outcome, err error) {
	start := o.now()
	if meta.RequestID == "" {
		meta.RequestID = uuid.NewString()
	}
	model := strings.TrimSpace(req.Model)
	req.Model = model
	family := o.normalizer.Table().Classify(model)
	log := o.logger.With().Str("request_id", meta.RequestID).Str("model", model).Str("family", family.Name).Logger()

	o.createRecord(ctx, log, meta, req, family, start)

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("generate: recovered panic")
			out = nil
			err = newError(KindProvider, "Internal error", "The generation could not be completed.")
		}
		if err != nil {
			gen := AsError(err)
			if gen.Model == "" {
				gen.Model = model
			}
			err = gen
		}
		o.finalize(ctx, log, meta.RequestID, family, out, AsError(err))
	}()

	if model == "" {
		return nil, newError(KindMissingRequiredField, "Missing required field: model", "A model id is required.")
	}
	if strings.TrimSpace(req.Prompt) == "" && !req.HasImage() && strings.TrimSpace(req.VideoID) == "" {
		return nil, newError(KindMissingRequiredField, "Missing required field: prompt or image_url", "Provide a prompt or at least one image.")
	}

	opt := prompt.Optimize(req.Prompt, mediaType(family.Class), model)
	req.Prompt = opt.Prompt
	if opt.Changed() {
		log.Debug().Int("before", prompt.Length(opt.Original)).Int("after", prompt.Length(opt.Prompt)).Msg("generate: prompt optimized")
	}

	if limit, n := prompt.MaxLength(model), prompt.Length(req.Prompt); n > limit {
		e := newError(KindPromptTooLong, "", fmt.Sprintf("Prompt exceeds the %d character limit for %s.", limit, model))
		e.Details = fmt.Sprintf("Current length: %d characters. Maximum allowed: %d characters.", n, limit)
		return nil, e
	}

	payload, family, err := o.normalizer.Normalize(ctx, req, model)
	if err != nil {
		return nil, err
	}

	res, err := o.dispatcher.Dispatch(ctx, Attempt{
		GenerationID: meta.RequestID,
		Sequence:     1,
		Model:        model,
		Family:       family,
		Payload:      payload,
	})
	if err != nil {
		gen := AsError(err)
		if !o.resolver.Eligible(family, gen) {
			return nil, o.decorate(gen, opt, model)
		}
		log.Info().Str("kind", string(gen.Kind)).Msg("generate: trying fallback chain")
		res, err = o.resolver.Resolve(ctx, req, Failure{
			GenerationID: meta.RequestID,
			Model:        model,
			Family:       family,
			Err:          gen,
			NextSequence: 2,
		})
		if err != nil {
			return nil, o.decorate(AsError(err), opt, model)
		}
	}

	out = &Outcome{
		RequestID:       meta.RequestID,
		Model:           res.Model,
		FallbackUsed:    res.FallbackUsed,
		Data:            res.Data,
		OutputURL:       res.OutputURL,
		Prompt:          opt.Prompt,
		PromptOptimized: opt.Changed(),
		Warnings:        opt.Warnings,
		Suggestions:     opt.Suggestions,
		Elapsed:         o.now().Sub(start),
	}
	if out.PromptOptimized {
		out.OriginalPrompt = opt.Original
	}
	if res.FallbackUsed != "" {
		out.OriginalModel = model
	}
	return out, nil
}

// decorate adds caller guidance to a terminal failure.
func (o *Orchestrator) decorate(e *Error, opt prompt.Result, model string) *Error {
	if e.Model == "" {
		e.Model = model
	}
	if e.Kind != KindContentPolicyViolation {
		return e
	}
	e.Suggestions = prompt.SafeAlternatives(opt.Prompt)
	if strings.Contains(strings.ToLower(model), "sora-2") {
		e.Message = "Sora 2 rejected the prompt. Sora 2 has no fallback model; rephrase the prompt and resubmit."
	}
	return e
}

func (o *Orchestrator) createRecord(ctx context.Context, log zerolog.Logger, meta Meta, req Request, family *profile.Family, now time.Time) {
	if o.records == nil {
		return
	}
	rec := domain.GenerationRecord{
		ID:        meta.RequestID,
		UserID:    meta.UserID,
		SessionID: meta.SessionID,
		Prompt:    req.Prompt,
		Model:     req.Model,
		Status:    domain.GenerationPending,
		Metadata:  map[string]any{"model_type": string(family.Class)},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if meta.Country != "" {
		rec.Metadata["country"] = meta.Country
	}
	if meta.ClientRequestID != "" {
		rec.Metadata["client_request_id"] = meta.ClientRequestID
	}
	if rec.SessionID == "" {
		rec.SessionID = meta.RequestID
	}
	if rec.Anonymous() && o.retention > 0 {
		exp := now.Add(o.retention)
		rec.ExpiresAt = &exp
	}
	if err := o.records.CreateGeneration(context.WithoutCancel(ctx), rec); err != nil {
		metrics.RecordWriteFailure("create")
		log.Error().Err(err).Msg("records: create failed")
	}
}

func (o *Orchestrator) finalize(ctx context.Context, log zerolog.Logger, id string, family *profile.Family, out *Outcome, gen *Error) {
	outcome := domain.GenerationOutcome{Metadata: map[string]any{}}
	if gen != nil {
		outcome.Status = domain.GenerationFailed
		outcome.Model = gen.Model
		outcome.Metadata["error_kind"] = string(gen.Kind)
		if gen.Exhausted {
			outcome.Metadata["fallback_exhausted"] = true
		}
		metrics.RecordRequest(family.Name, string(gen.Kind))
		log.Warn().Str("kind", string(gen.Kind)).Int("status", gen.Status).Msg("generate: request failed")
	} else {
		outcome.Status = domain.GenerationCompleted
		outcome.Model = out.Model
		outcome.OutputURL = out.OutputURL
		if out.FallbackUsed != "" {
			outcome.Model = out.FallbackUsed
			outcome.Metadata["fallback_used"] = out.FallbackUsed
		}
		metrics.RecordRequest(family.Name, "completed")
		log.Info().Dur("elapsed", out.Elapsed).Str("fallback_used", out.FallbackUsed).Msg("generate: request completed")
	}
	if o.records == nil {
		return
	}
	if err := o.records.FinalizeGeneration(context.WithoutCancel(ctx), id, outcome); err != nil {
		metrics.RecordWriteFailure("finalize")
		log.Error().Err(err).Msg("records: finalize failed")
	}
}

func mediaType(c profile.Class) prompt.MediaType {
	switch c {
	case profile.ClassVideo:
		return prompt.MediaVideo
	case profile.ClassAudio:
		return prompt.MediaAudio
	default:
		return prompt.MediaImage
	}
}
