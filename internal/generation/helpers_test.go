package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"mediagen/internal/domain"
	"mediagen/internal/profile"
	"mediagen/internal/providers/fal"
)

type subscribeFunc func(ctx context.Context, input map[string]any, onUpdate func(fal.QueueUpdate)) (*fal.Result, error)

type stubProvider struct {
	mu       sync.Mutex
	calls    []string
	payloads []map[string]any
	handlers map[string]subscribeFunc
}

func newStubProvider() *stubProvider {
	return &stubProvider{handlers: map[string]subscribeFunc{}}
}

func (s *stubProvider) on(model string, fn subscribeFunc) *stubProvider {
	s.handlers[model] = fn
	return s
}

func (s *stubProvider) Subscribe(ctx context.Context, model string, input map[string]any, onUpdate func(fal.QueueUpdate)) (*fal.Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, model)
	s.payloads = append(s.payloads, input)
	fn := s.handlers[model]
	s.mu.Unlock()
	if fn == nil {
		return okImage("https://cdn.test/" + model + ".png")(ctx, input, onUpdate)
	}
	return fn(ctx, input, onUpdate)
}

func (s *stubProvider) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func okImage(url string) subscribeFunc {
	return func(context.Context, map[string]any, func(fal.QueueUpdate)) (*fal.Result, error) {
		return &fal.Result{RequestID: "fal-1", Data: json.RawMessage(`{"images":[{"url":"` + url + `"}]}`)}, nil
	}
}

func failWith(status int, body string) subscribeFunc {
	return func(context.Context, map[string]any, func(fal.QueueUpdate)) (*fal.Result, error) {
		return nil, &fal.APIError{StatusCode: status, Body: []byte(body)}
	}
}

func contentRejected() subscribeFunc {
	return failWith(http.StatusUnprocessableEntity, `{"detail":[{"msg":"The content could not be processed","type":"content_policy_violation"}]}`)
}

func blockUntilCancelled() subscribeFunc {
	return func(ctx context.Context, _ map[string]any, _ func(fal.QueueUpdate)) (*fal.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

type memoryRecords struct {
	mu       sync.Mutex
	created  []domain.GenerationRecord
	finals   map[string][]domain.GenerationOutcome
	attempts []domain.GenerationAttempt
}

func newMemoryRecords() *memoryRecords {
	return &memoryRecords{finals: map[string][]domain.GenerationOutcome{}}
}

func (m *memoryRecords) CreateGeneration(_ context.Context, rec domain.GenerationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, rec)
	return nil
}

func (m *memoryRecords) FinalizeGeneration(_ context.Context, id string, out domain.GenerationOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finals[id] = append(m.finals[id], out)
	return nil
}

func (m *memoryRecords) RecordAttempt(_ context.Context, a domain.GenerationAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, a)
	return nil
}

var (
	familyX = &profile.Family{
		Name:       "family-x",
		Class:      profile.ClassImage,
		Match:      []string{"family-x"},
		Fields:     []string{"prompt", "image_url", "resolution"},
		Resolution: &profile.EnumRule{Values: []string{"sd", "hd"}, Default: "hd"},
		Fallbacks:  []string{"fallback-a/edit", "fallback-b"},
	}
	familyZ = &profile.Family{
		Name:      "family-z",
		Class:     profile.ClassImage,
		Match:     []string{"family-z"},
		Fields:    []string{"prompt"},
		Fallbacks: []string{"fallback-a", "fallback-b", "fallback-c"},
	}
	familyW = &profile.Family{
		Name:      "family-w",
		Class:     profile.ClassImage,
		Match:     []string{"family-w"},
		Fields:    []string{"prompt"},
		Fallbacks: []string{"FAMILY-W", "fallback-b", "fallback-b", "video-y"},
	}
	familyFallbackA = &profile.Family{Name: "fallback-a", Class: profile.ClassImage, Match: []string{"fallback-a"}, Fields: []string{"prompt", "image_url"}}
	familyFallbackB = &profile.Family{Name: "fallback-b", Class: profile.ClassImage, Match: []string{"fallback-b"}, Fields: []string{"prompt", "image_url"}}
	familyFallbackC = &profile.Family{Name: "fallback-c", Class: profile.ClassImage, Match: []string{"fallback-c"}, Fields: []string{"prompt"}}
	familyVideoY    = &profile.Family{
		Name:      "video-y",
		Class:     profile.ClassVideo,
		Match:     []string{"video-y"},
		Fields:    []string{"prompt"},
		Timeout:   30 * time.Millisecond,
		Fallbacks: []string{"fallback-b"},
	}
	testGeneric = &profile.Family{Name: "generic", Class: profile.ClassImage, Fields: []string{"prompt"}, Permissive: true}
)

func testTable() *profile.Table {
	return profile.NewTable(testGeneric, familyX, familyZ, familyW, familyFallbackA, familyFallbackB, familyFallbackC, familyVideoY)
}

type harness struct {
	provider *stubProvider
	records  *memoryRecords
	orch     *Orchestrator
}

func newHarness(table *profile.Table, provider *stubProvider) *harness {
	records := newMemoryRecords()
	normalizer := NewNormalizer(table, nil)
	dispatcher := NewDispatcher(DispatcherOptions{Provider: provider, Attempts: records})
	return &harness{
		provider: provider,
		records:  records,
		orch: NewOrchestrator(OrchestratorOptions{
			Normalizer:    normalizer,
			Dispatcher:    dispatcher,
			Records:       records,
			AnonRetention: 72 * time.Hour,
		}),
	}
}
