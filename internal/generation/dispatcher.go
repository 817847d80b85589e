package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"mediagen/internal/domain"
	"mediagen/internal/infra"
	"mediagen/internal/metrics"
	"mediagen/internal/profile"
	"mediagen/internal/providers/fal"
)

// Provider runs one job to completion. onUpdate is only called before
// Subscribe returns.
type Provider interface {
	Subscribe(ctx context.Context, model string, input map[string]any, onUpdate func(fal.QueueUpdate)) (*fal.Result, error)
}

// AttemptRecorder stores the audit row of a single dispatch.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, a domain.GenerationAttempt) error
}

// Progress is an informational queue update for one attempt.
type Progress struct {
	GenerationID  string
	Model         string
	Sequence      int
	Status        string
	QueuePosition int
	Logs          []string
}

// Observer receives progress. It runs on its own goroutine and never delays
// the dispatch; updates are dropped when it falls behind.
type Observer func(Progress)

const progressBuffer = 16

// TimeoutPolicy holds the per-class dispatch ceilings.
type TimeoutPolicy struct {
	Image     time.Duration
	Video     time.Duration
	SlowVideo time.Duration
	Audio     time.Duration
}

// DefaultTimeoutPolicy matches the service defaults.
func DefaultTimeoutPolicy() TimeoutPolicy {
	return TimeoutPolicy{Image: 2 * time.Minute, Video: 5 * time.Minute, SlowVideo: 8 * time.Minute, Audio: 2 * time.Minute}
}

// TimeoutPolicyFromConfig reads the ceilings from cfg.
func TimeoutPolicyFromConfig(cfg *infra.Config) TimeoutPolicy {
	return TimeoutPolicy{Image: cfg.ImageTimeout, Video: cfg.VideoTimeout, SlowVideo: cfg.SlowVideoTimeout, Audio: cfg.AudioTimeout}
}

// For returns the ceiling applied to dispatches of f.
func (p TimeoutPolicy) For(f *profile.Family) time.Duration {
	if f.Timeout > 0 {
		return f.Timeout
	}
	d := DefaultTimeoutPolicy()
	pick := func(v, fallback time.Duration) time.Duration {
		if v > 0 {
			return v
		}
		return fallback
	}
	switch f.Class {
	case profile.ClassVideo:
		if f.Slow {
			return pick(p.SlowVideo, d.SlowVideo)
		}
		return pick(p.Video, d.Video)
	case profile.ClassAudio:
		return pick(p.Audio, d.Audio)
	default:
		return pick(p.Image, d.Image)
	}
}

// DispatcherOptions wires a Dispatcher.
type DispatcherOptions struct {
	Provider Provider
	Timeouts TimeoutPolicy
	Attempts AttemptRecorder
	Observer Observer
	Logger   *infra.Logger
	Now      func() time.Time
}

// Dispatcher sends normalized payloads to the provider under a timeout.
type Dispatcher struct {
	provider Provider
	timeouts TimeoutPolicy
	attempts AttemptRecorder
	observer Observer
	logger   zerolog.Logger
	now      func() time.Time
}

// NewDispatcher constructs a dispatcher.
func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		provider: opts.Provider,
		timeouts: opts.Timeouts,
		attempts: opts.Attempts,
		observer: opts.Observer,
		logger:   infra.LoggerOrDiscard(opts.Logger),
		now:      now,
	}
}

// Attempt is one dispatch of a normalized payload.
type Attempt struct {
	GenerationID string
	Sequence     int
	Model        string
	Family       *profile.Family
	Payload      profile.Payload
}

// Result is a successful dispatch.
type Result struct {
	Model             string
	ProviderRequestID string
	Data              json.RawMessage
	OutputURL         string
	Elapsed           time.Duration
	// FallbackUsed names the fallback model that produced Data, if any.
	FallbackUsed string
}

type providerOutcome struct {
	res *fal.Result
	err error
}

// Dispatch submits a and waits for the first of provider completion, the
// family timeout or ctx. A timed out job is abandoned, not cancelled at the
// provider. Failures are returned as *Error.
func (d *Dispatcher) Dispatch(ctx context.Context, a Attempt) (*Result, error) {
	if d.provider == nil {
		return nil, newError(KindProvider, "Provider not configured", "No generation provider is configured.")
	}
	timeout := d.timeouts.For(a.Family)
	log := d.logger.With().
		Str("request_id", a.GenerationID).
		Str("model", a.Model).
		Str("family", a.Family.Name).
		Int("attempt", a.Sequence).
		Logger()

	pollCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates, onUpdate := d.progressSink(a)
	done := make(chan providerOutcome, 1)
	start := d.now()
	go func() {
		if updates != nil {
			defer close(updates)
		}
		res, err := d.provider.Subscribe(pollCtx, a.Model, a.Payload, onUpdate)
		done <- providerOutcome{res: res, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var (
		res *Result
		gen *Error
		out providerOutcome
	)
	select {
	case out = <-done:
		if out.err != nil {
			gen = FromProvider(out.err)
		} else {
			res = buildResult(a.Model, out.res)
		}
	case <-timer.C:
		gen = newError(KindTimeout, "", fmt.Sprintf("%s did not finish within %s.", a.Model, timeout))
		gen.Details = "The job may still complete at the provider; resubmit to try again."
	case <-ctx.Done():
		gen = FromProvider(ctx.Err())
	}
	elapsed := d.now().Sub(start)

	attempt := domain.GenerationAttempt{
		ID:           uuid.NewString(),
		GenerationID: a.GenerationID,
		Sequence:     a.Sequence,
		Model:        a.Model,
		Family:       a.Family.Name,
		Elapsed:      elapsed,
		CreatedAt:    start,
	}
	kind := "ok"
	if gen != nil {
		gen.Model = a.Model
		kind = string(gen.Kind)
		attempt.Status = domain.GenerationFailed
		attempt.ErrorKind = kind
		attempt.HTTPStatus = gen.Status
		log.Warn().Str("kind", kind).Dur("elapsed", elapsed).Err(gen).Msg("dispatch: attempt failed")
	} else {
		res.Elapsed = elapsed
		attempt.Status = domain.GenerationCompleted
		attempt.ProviderID = res.ProviderRequestID
		log.Info().Dur("elapsed", elapsed).Str("fal_request_id", res.ProviderRequestID).Msg("dispatch: attempt completed")
	}
	metrics.RecordDispatch(a.Family.Name, kind, elapsed)
	d.recordAttempt(ctx, log, attempt)

	if gen != nil {
		return nil, gen
	}
	return res, nil
}

func (d *Dispatcher) progressSink(a Attempt) (chan Progress, func(fal.QueueUpdate)) {
	if d.observer == nil {
		return nil, nil
	}
	updates := make(chan Progress, progressBuffer)
	observer := d.observer
	go func() {
		for p := range updates {
			observer(p)
		}
	}()
	return updates, func(u fal.QueueUpdate) {
		p := Progress{
			GenerationID:  a.GenerationID,
			Model:         a.Model,
			Sequence:      a.Sequence,
			Status:        string(u.Status),
			QueuePosition: u.QueuePosition,
			Logs:          u.Logs,
		}
		select {
		case updates <- p:
		default:
		}
	}
}

func (d *Dispatcher) recordAttempt(ctx context.Context, log zerolog.Logger, a domain.GenerationAttempt) {
	if d.attempts == nil {
		return
	}
	if err := d.attempts.RecordAttempt(context.WithoutCancel(ctx), a); err != nil {
		metrics.RecordWriteFailure("attempt")
		log.Error().Err(err).Msg("records: attempt write failed")
	}
}

func buildResult(model string, res *fal.Result) *Result {
	out := &Result{Model: model}
	if res == nil {
		return out
	}
	out.ProviderRequestID = res.RequestID
	out.Data = res.Data
	out.OutputURL = OutputURL(res.Data)
	return out
}

// outputPaths are tried in order; the first string value wins.
var outputPaths = []string{"video.url", "audio.url", "audio_url.url", "audio_url", "images.0.url", "image.url"}

// OutputURL extracts the primary media url from a provider result.
func OutputURL(data []byte) string {
	for _, path := range outputPaths {
		if v := gjson.GetBytes(data, path); v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return ""
}
