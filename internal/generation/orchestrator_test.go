package generation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"
	"testing"
	"time"

	"mediagen/internal/domain"
	"mediagen/internal/profile"
	"mediagen/internal/providers/fal"
)

func requireError(t *testing.T, err error) *Error {
	t.Helper()
	var gen *Error
	if !errors.As(err, &gen) {
		t.Fatalf("err = %v, want *Error", err)
	}
	return gen
}

func requireSingleFinal(t *testing.T, records *memoryRecords, id string, want domain.GenerationStatus) domain.GenerationOutcome {
	t.Helper()
	finals := records.finals[id]
	if len(finals) != 1 {
		t.Fatalf("finalize calls for %s = %d, want 1", id, len(finals))
	}
	if finals[0].Status != want {
		t.Fatalf("final status = %s, want %s", finals[0].Status, want)
	}
	return finals[0]
}

func TestGenerateSuccessEnvelope(t *testing.T) {
	h := newHarness(testTable(), newStubProvider())

	out, err := h.orch.Generate(context.Background(), Meta{RequestID: "req-1", UserID: "u-1"}, Request{
		Model:    "family-x/edit",
		Prompt:   "  a cat  ",
		ImageURL: "https://img.test/a.jpg",
	})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if out.Model != "family-x/edit" || out.FallbackUsed != "" || out.OriginalModel != "" {
		t.Fatalf("outcome = %#v", out)
	}
	if out.OutputURL != "https://cdn.test/family-x/edit.png" {
		t.Fatalf("OutputURL = %q", out.OutputURL)
	}
	if out.Prompt != "a cat" || out.PromptOptimized {
		t.Fatalf("prompt = %q optimized=%v, want trimmed and untouched", out.Prompt, out.PromptOptimized)
	}

	if len(h.records.created) != 1 || h.records.created[0].Status != domain.GenerationPending {
		t.Fatalf("created = %#v", h.records.created)
	}
	if h.records.created[0].ExpiresAt != nil {
		t.Fatalf("records of signed-in users must not expire")
	}
	final := requireSingleFinal(t, h.records, "req-1", domain.GenerationCompleted)
	if final.OutputURL != out.OutputURL {
		t.Fatalf("final output = %q", final.OutputURL)
	}

	env := NewSuccessEnvelope(out, time.Unix(0, 0))
	body, _ := json.Marshal(env)
	for _, want := range []string{`"success":true`, `"requestId":"req-1"`, `"status":"completed"`, `"timestamp":"1970-01-01T00:00:00Z"`} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("envelope %s missing %s", body, want)
		}
	}
}

func TestGenerateNormalizesFamilyDefaults(t *testing.T) {
	provider := newStubProvider()
	h := newHarness(testTable(), provider)

	_, err := h.orch.Generate(context.Background(), Meta{RequestID: "req-a"}, Request{
		Model:    "family-X/edit",
		Prompt:   "a cat",
		ImageURL: "https://img.test/a.jpg",
	})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	payload := provider.payloads[0]
	if payload["resolution"] != "hd" {
		t.Fatalf("resolution = %v, want family default hd", payload["resolution"])
	}
	if _, ok := payload["duration"]; ok {
		t.Fatalf("image-only family must not carry duration: %#v", payload)
	}
}

func TestGenerateFallbackSecondCandidateSucceeds(t *testing.T) {
	provider := newStubProvider().
		on("family-x/edit", contentRejected()).
		on("fallback-a/edit", contentRejected()).
		on("fallback-b", okImage("https://cdn.test/b.png"))
	h := newHarness(testTable(), provider)

	out, err := h.orch.Generate(context.Background(), Meta{RequestID: "req-c"}, Request{
		Model:    "family-x/edit",
		Prompt:   "a cat",
		ImageURL: "https://img.test/a.jpg",
	})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if out.FallbackUsed != "fallback-b" || out.OriginalModel != "family-x/edit" {
		t.Fatalf("FallbackUsed = %q OriginalModel = %q", out.FallbackUsed, out.OriginalModel)
	}
	env := NewSuccessEnvelope(out, time.Now())
	if !env.Success || env.FallbackUsed != "fallback-b" {
		t.Fatalf("envelope = %#v", env)
	}
	if got, want := provider.Calls(), []string{"family-x/edit", "fallback-a/edit", "fallback-b"}; !slices.Equal(got, want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	if len(h.records.attempts) != 3 {
		t.Fatalf("attempts = %d, want 3", len(h.records.attempts))
	}
	for i, a := range h.records.attempts {
		if a.Sequence != i+1 || a.GenerationID != "req-c" {
			t.Fatalf("attempt %d = %#v", i, a)
		}
	}
	final := requireSingleFinal(t, h.records, "req-c", domain.GenerationCompleted)
	if final.Metadata["fallback_used"] != "fallback-b" || final.Model != "fallback-b" {
		t.Fatalf("final = %#v", final)
	}
}

func TestGeneratePromptTooLongSkipsDispatch(t *testing.T) {
	provider := newStubProvider()
	h := newHarness(testTable(), provider)

	_, err := h.orch.Generate(context.Background(), Meta{RequestID: "req-d"}, Request{
		Model:    "family-x/edit",
		Prompt:   strings.Repeat("a", 3200),
		ImageURL: "https://img.test/a.jpg",
	})
	gen := requireError(t, err)
	if gen.Kind != KindPromptTooLong || gen.Status != http.StatusBadRequest {
		t.Fatalf("err = %#v", gen)
	}
	if gen.Details != "Current length: 3200 characters. Maximum allowed: 2500 characters." {
		t.Fatalf("Details = %q", gen.Details)
	}
	if calls := provider.Calls(); len(calls) != 0 {
		t.Fatalf("provider was invoked: %v", calls)
	}
	requireSingleFinal(t, h.records, "req-d", domain.GenerationFailed)
}

func TestGenerateVideoTimeoutHasNoFallback(t *testing.T) {
	provider := newStubProvider().on("video-y", blockUntilCancelled())
	h := newHarness(testTable(), provider)

	start := time.Now()
	_, err := h.orch.Generate(context.Background(), Meta{RequestID: "req-e"}, Request{Model: "video-y", Prompt: "waves rolling"})
	gen := requireError(t, err)
	if gen.Kind != KindTimeout || gen.Status != http.StatusGatewayTimeout {
		t.Fatalf("err = %#v", gen)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("timeout took %s", elapsed)
	}
	if calls := provider.Calls(); !slices.Equal(calls, []string{"video-y"}) {
		t.Fatalf("calls = %v, want only the primary", calls)
	}
	final := requireSingleFinal(t, h.records, "req-e", domain.GenerationFailed)
	if final.Metadata["error_kind"] != string(KindTimeout) {
		t.Fatalf("metadata = %#v", final.Metadata)
	}
}

func TestGenerateVideoContentRejectionHasNoFallback(t *testing.T) {
	provider := newStubProvider().on("video-y", contentRejected())
	h := newHarness(testTable(), provider)

	_, err := h.orch.Generate(context.Background(), Meta{RequestID: "req-v"}, Request{Model: "video-y", Prompt: "waves"})
	gen := requireError(t, err)
	if gen.Kind != KindContentPolicyViolation || gen.Exhausted {
		t.Fatalf("err = %#v", gen)
	}
	if len(gen.Suggestions) == 0 {
		t.Fatalf("content rejections should carry suggestions")
	}
	if calls := provider.Calls(); len(calls) != 1 {
		t.Fatalf("calls = %v", calls)
	}
}

func TestGenerateFallbackBound(t *testing.T) {
	provider := newStubProvider().
		on("family-z", contentRejected()).
		on("fallback-a", contentRejected()).
		on("fallback-b", contentRejected()).
		on("fallback-c", okImage("https://cdn.test/c.png"))
	h := newHarness(testTable(), provider)

	_, err := h.orch.Generate(context.Background(), Meta{RequestID: "req-bound"}, Request{Model: "family-z", Prompt: "a cat"})
	gen := requireError(t, err)
	if gen.Kind != KindContentPolicyViolation || !gen.Exhausted {
		t.Fatalf("err = %#v", gen)
	}
	if gen.Details != "All fallback candidates were exhausted: tried fallback-a, fallback-b." {
		t.Fatalf("Details = %q", gen.Details)
	}
	if got := provider.Calls(); !slices.Equal(got, []string{"family-z", "fallback-a", "fallback-b"}) {
		t.Fatalf("calls = %v", got)
	}
	requireSingleFinal(t, h.records, "req-bound", domain.GenerationFailed)
}

func TestGenerateFallbackNeverRepeatsModels(t *testing.T) {
	provider := newStubProvider().
		on("family-w", contentRejected()).
		on("fallback-b", contentRejected())
	h := newHarness(testTable(), provider)

	_, err := h.orch.Generate(context.Background(), Meta{RequestID: "req-w"}, Request{Model: "family-w", Prompt: "a cat"})
	gen := requireError(t, err)
	if !gen.Exhausted {
		t.Fatalf("err = %#v", gen)
	}
	if got := provider.Calls(); !slices.Equal(got, []string{"family-w", "fallback-b"}) {
		t.Fatalf("calls = %v", got)
	}
}

func TestGenerateTransportErrorStopsChain(t *testing.T) {
	provider := newStubProvider().
		on("family-x/edit", contentRejected()).
		on("fallback-a/edit", func(context.Context, map[string]any, func(fal.QueueUpdate)) (*fal.Result, error) {
			return nil, errors.New("connection reset by peer")
		})
	h := newHarness(testTable(), provider)

	_, err := h.orch.Generate(context.Background(), Meta{RequestID: "req-t"}, Request{
		Model:    "family-x/edit",
		Prompt:   "a cat",
		ImageURL: "https://img.test/a.jpg",
	})
	gen := requireError(t, err)
	if gen.Kind != KindProvider || !gen.Transport {
		t.Fatalf("err = %#v", gen)
	}
	if got := provider.Calls(); !slices.Equal(got, []string{"family-x/edit", "fallback-a/edit"}) {
		t.Fatalf("calls = %v", got)
	}
}

func TestGenerateValidationErrorIsTerminal(t *testing.T) {
	provider := newStubProvider().
		on("family-x/edit", failWith(http.StatusUnprocessableEntity, `{"detail":[{"loc":["body","resolution"],"msg":"unexpected value","type":"literal_error"}]}`))
	h := newHarness(testTable(), provider)

	_, err := h.orch.Generate(context.Background(), Meta{RequestID: "req-val"}, Request{
		Model:    "family-x/edit",
		Prompt:   "a cat",
		ImageURL: "https://img.test/a.jpg",
	})
	gen := requireError(t, err)
	if gen.Kind != KindValidation {
		t.Fatalf("kind = %s", gen.Kind)
	}
	if len(gen.Diagnostic) == 0 {
		t.Fatalf("provider body should be kept as diagnostic")
	}
	if got := provider.Calls(); len(got) != 1 {
		t.Fatalf("calls = %v", got)
	}
}

func TestGeneratePromptTooLongFallsBackToLargerCeiling(t *testing.T) {
	provider := newStubProvider().
		on("fal-ai/nano-banana/edit", failWith(http.StatusBadRequest, `{"detail":"Prompt too long"}`))
	h := newHarness(profile.Default(), provider)

	out, err := h.orch.Generate(context.Background(), Meta{RequestID: "req-len"}, Request{
		Model:     "fal-ai/nano-banana/edit",
		Prompt:    strings.Repeat("b", 1500),
		ImageURLs: []string{"https://img.test/a.jpg"},
	})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if out.FallbackUsed != "fal-ai/flux-pro/v1.1-ultra" {
		t.Fatalf("FallbackUsed = %q", out.FallbackUsed)
	}
	if got := provider.Calls(); !slices.Equal(got, []string{"fal-ai/nano-banana/edit", "fal-ai/flux-pro/v1.1-ultra"}) {
		t.Fatalf("calls = %v, seedream shares the 2000 ceiling and must be skipped", got)
	}
}

func TestGenerateMissingFields(t *testing.T) {
	tests := []struct {
		name  string
		req   Request
		title string
	}{
		{name: "model", req: Request{Prompt: "a cat"}, title: "Missing required field: model"},
		{name: "prompt", req: Request{Model: "family-z"}, title: "Missing required field: prompt or image_url"},
		{name: "image for edit", req: Request{Model: "family-x/edit", Prompt: "a cat"}, title: "Missing required field: image_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := newStubProvider()
			h := newHarness(testTable(), provider)
			_, err := h.orch.Generate(context.Background(), Meta{RequestID: "req-m"}, tt.req)
			gen := requireError(t, err)
			if gen.Kind != KindMissingRequiredField || gen.Title != tt.title {
				t.Fatalf("err = %#v", gen)
			}
			if len(provider.Calls()) != 0 {
				t.Fatalf("provider was invoked")
			}
			requireSingleFinal(t, h.records, "req-m", domain.GenerationFailed)
		})
	}
}

func TestGenerateAnonymousRecordExpires(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	records := newMemoryRecords()
	orch := NewOrchestrator(OrchestratorOptions{
		Normalizer:    NewNormalizer(testTable(), nil),
		Dispatcher:    NewDispatcher(DispatcherOptions{Provider: newStubProvider()}),
		Records:       records,
		AnonRetention: 72 * time.Hour,
		Now:           func() time.Time { return now },
	})

	if _, err := orch.Generate(context.Background(), Meta{RequestID: "anon-1", Country: "ID"}, Request{Model: "family-z", Prompt: "a cat"}); err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	rec := records.created[0]
	if rec.SessionID != "anon-1" {
		t.Fatalf("SessionID = %q, want request id", rec.SessionID)
	}
	if rec.ExpiresAt == nil || !rec.ExpiresAt.Equal(now.Add(72*time.Hour)) {
		t.Fatalf("ExpiresAt = %v", rec.ExpiresAt)
	}
	if rec.Metadata["country"] != "ID" || rec.Metadata["model_type"] != "image" {
		t.Fatalf("metadata = %#v", rec.Metadata)
	}
}

type failingRecords struct{ *memoryRecords }

func (failingRecords) CreateGeneration(context.Context, domain.GenerationRecord) error {
	return errors.New("db down")
}

func (failingRecords) FinalizeGeneration(context.Context, string, domain.GenerationOutcome) error {
	return errors.New("db down")
}

func TestGenerateIgnoresRecordFailures(t *testing.T) {
	orch := NewOrchestrator(OrchestratorOptions{
		Normalizer: NewNormalizer(testTable(), nil),
		Dispatcher: NewDispatcher(DispatcherOptions{Provider: newStubProvider()}),
		Records:    failingRecords{newMemoryRecords()},
	})
	out, err := orch.Generate(context.Background(), Meta{}, Request{Model: "family-z", Prompt: "a cat"})
	if err != nil {
		t.Fatalf("persistence failures must not fail the request: %v", err)
	}
	if out.RequestID == "" {
		t.Fatalf("request id should be generated")
	}
}

func TestErrorEnvelope(t *testing.T) {
	e := newError(KindContentPolicyViolation, "", "rejected")
	e.Model = "family-x/edit"
	e.Details = "All fallback candidates were exhausted: tried fallback-a."
	env := NewErrorEnvelope(e, "req-1", time.Unix(0, 0))
	if env.Success || env.Error != "Content policy violation" || env.Status != http.StatusUnprocessableEntity {
		t.Fatalf("envelope = %#v", env)
	}
	if env.Kind != KindContentPolicyViolation || env.Model != "family-x/edit" || env.RequestID != "req-1" {
		t.Fatalf("envelope = %#v", env)
	}

	plain := NewErrorEnvelope(errors.New("boom"), "", time.Unix(0, 0))
	if plain.Kind != KindProvider || plain.Status != http.StatusBadGateway {
		t.Fatalf("plain envelope = %#v", plain)
	}
}
