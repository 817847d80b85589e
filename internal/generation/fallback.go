package generation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"mediagen/internal/infra"
	"mediagen/internal/metrics"
	"mediagen/internal/profile"
	"mediagen/internal/prompt"
)

// MaxFallbacks bounds how many alternate models one request may try.
const MaxFallbacks = 2

// Failure describes the dispatch that triggered fallback resolution.
type Failure struct {
	GenerationID string
	Model        string
	Family       *profile.Family
	Err          *Error
	// Attempted lists models already dispatched for this request.
	Attempted []string
	// NextSequence is the attempt number the first candidate gets.
	NextSequence int
}

// Resolver walks a family's fallback chain after an eligible failure.
type Resolver struct {
	normalizer *Normalizer
	dispatcher *Dispatcher
	logger     zerolog.Logger
}

// NewResolver constructs a resolver.
func NewResolver(normalizer *Normalizer, dispatcher *Dispatcher, logger *infra.Logger) *Resolver {
	return &Resolver{normalizer: normalizer, dispatcher: dispatcher, logger: infra.LoggerOrDiscard(logger)}
}

// Eligible reports whether f may be retried on its fallback chain.
func (r *Resolver) Eligible(f *profile.Family, err *Error) bool {
	if f == nil || err == nil || err.Transport {
		return false
	}
	return f.Class == profile.ClassImage && len(f.Fallbacks) > 0 && err.Kind.FallbackEligible()
}

// Resolve tries the chain in order and returns the first success, with
// FallbackUsed set to the model that produced it. When every candidate
// fails the error keeps the original kind and says the chain was exhausted.
func (r *Resolver) Resolve(ctx context.Context, req Request, f Failure) (*Result, error) {
	if !r.Eligible(f.Family, f.Err) {
		return nil, f.Err
	}
	log := r.logger.With().Str("request_id", f.GenerationID).Str("model", f.Model).Str("kind", string(f.Err.Kind)).Logger()

	attempted := append([]string{f.Model}, f.Attempted...)
	seq := f.NextSequence
	if seq <= 0 {
		seq = len(attempted) + 1
	}

	var tried []string
	last := f.Err
	for _, candidate := range r.candidates(req, f, attempted) {
		if len(tried) == MaxFallbacks {
			break
		}
		if err := ctx.Err(); err != nil {
			log.Debug().Msg("fallback: request cancelled, stopping")
			return nil, FromProvider(err)
		}

		payload, family, err := r.normalizer.Normalize(ctx, req, candidate)
		if err != nil {
			log.Debug().Err(err).Str("candidate", candidate).Msg("fallback: candidate cannot take this request, skipping")
			continue
		}
		tried = append(tried, candidate)
		attempted = append(attempted, candidate)

		log.Info().Str("candidate", candidate).Int("attempt", seq).Msg("fallback: trying candidate")
		res, err := r.dispatcher.Dispatch(ctx, Attempt{
			GenerationID: f.GenerationID,
			Sequence:     seq,
			Model:        candidate,
			Family:       family,
			Payload:      payload,
		})
		seq++
		if err == nil {
			metrics.RecordFallback(f.Model, candidate, "ok")
			res.FallbackUsed = candidate
			log.Info().Str("candidate", candidate).Msg("fallback: candidate succeeded")
			return res, nil
		}

		gen := AsError(err)
		metrics.RecordFallback(f.Model, candidate, string(gen.Kind))
		last = gen
		if !continueAfter(gen) {
			log.Warn().Str("candidate", candidate).Str("candidate_kind", string(gen.Kind)).Msg("fallback: stopping chain")
			return nil, gen
		}
	}

	if len(tried) == 0 {
		return nil, f.Err
	}
	return nil, exhausted(f, tried, last)
}

// candidates filters the family chain for this request, in chain order.
func (r *Resolver) candidates(req Request, f Failure, attempted []string) []string {
	table := r.normalizer.Table()
	length := prompt.Length(req.Prompt)
	origLimit := prompt.MaxLength(f.Model)

	var out []string
	for _, c := range f.Family.Fallbacks {
		if slices.ContainsFunc(attempted, func(a string) bool { return strings.EqualFold(a, c) }) || slices.Contains(out, c) {
			continue
		}
		if table.Classify(c).Class != profile.ClassImage {
			continue
		}
		limit := prompt.MaxLength(c)
		if f.Err.Kind == KindPromptTooLong && limit <= origLimit {
			continue
		}
		if length > limit {
			continue
		}
		out = append(out, c)
	}
	return out
}

// continueAfter decides whether a failed candidate lets the chain go on.
// Timeouts and transport failures stop it.
func continueAfter(err *Error) bool {
	if err.Transport || err.Kind == KindTimeout {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

func exhausted(f Failure, tried []string, last *Error) *Error {
	e := newError(f.Err.Kind, "", f.Err.Message)
	e.Model = f.Model
	e.Exhausted = true
	e.Details = fmt.Sprintf("All fallback candidates were exhausted: tried %s.", strings.Join(tried, ", "))
	if last != nil {
		e.Diagnostic = last.Diagnostic
		e.Err = last
	}
	return e
}
