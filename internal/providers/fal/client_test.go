package fal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

type queueStub struct {
	mu        sync.Mutex
	submitted map[string]any
	auth      []string
	polls     int
	statuses  []string
	result    *http.Response
}

func (s *queueStub) transport() http.RoundTripper {
	return roundTripFunc(func(r *http.Request) (*http.Response, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.auth = append(s.auth, r.Header.Get("Authorization"))
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/fal-ai/flux-pro/v1.1-ultra":
			_ = json.NewDecoder(r.Body).Decode(&s.submitted)
			return jsonResponse(http.StatusOK, `{"request_id":"req-1","status_url":"https://queue.test/fal-ai/flux-pro/requests/req-1/status","response_url":"https://queue.test/fal-ai/flux-pro/requests/req-1"}`), nil
		case r.URL.Path == "/fal-ai/flux-pro/requests/req-1/status":
			if r.URL.Query().Get("logs") != "1" {
				return jsonResponse(http.StatusBadRequest, `{"detail":"logs flag missing"}`), nil
			}
			body := s.statuses[min(s.polls, len(s.statuses)-1)]
			s.polls++
			return jsonResponse(http.StatusOK, body), nil
		case r.URL.Path == "/fal-ai/flux-pro/requests/req-1":
			return s.result, nil
		}
		return jsonResponse(http.StatusNotFound, `{"detail":"not found"}`), nil
	})
}

func newStubClient(t *testing.T, stub *queueStub) *Client {
	t.Helper()
	client, err := NewClient(Options{
		APIKey:       "secret",
		BaseURL:      "https://queue.test/",
		HTTPClient:   &http.Client{Transport: stub.transport()},
		PollInterval: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	return client
}

func TestSubscribePollsUntilCompleted(t *testing.T) {
	stub := &queueStub{
		statuses: []string{
			`{"status":"IN_QUEUE","queue_position":3}`,
			`{"status":"IN_PROGRESS","logs":[{"message":"loading"}]}`,
			`{"status":"COMPLETED","logs":[{"message":"loading"},{"message":"done"}]}`,
		},
		result: jsonResponse(http.StatusOK, `{"images":[{"url":"https://cdn.test/out.png"}]}`),
	}
	client := newStubClient(t, stub)

	var updates []QueueUpdate
	res, err := client.Subscribe(context.Background(), "fal-ai/flux-pro/v1.1-ultra", map[string]any{"prompt": "a cat"}, func(u QueueUpdate) {
		updates = append(updates, u)
	})
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}
	if res.RequestID != "req-1" {
		t.Fatalf("RequestID = %q, want req-1", res.RequestID)
	}
	if !strings.Contains(string(res.Data), "out.png") {
		t.Fatalf("Data = %s", res.Data)
	}
	if stub.submitted["prompt"] != "a cat" {
		t.Fatalf("submitted = %#v", stub.submitted)
	}
	for _, auth := range stub.auth {
		if auth != "Key secret" {
			t.Fatalf("Authorization = %q, want Key secret", auth)
		}
	}
	if len(updates) != 3 {
		t.Fatalf("updates = %d, want 3", len(updates))
	}
	if updates[0].QueuePosition != 3 || updates[0].Status != StatusInQueue {
		t.Fatalf("first update = %#v", updates[0])
	}
	if len(updates[1].Logs) != 1 || updates[1].Logs[0] != "loading" {
		t.Fatalf("second update logs = %#v", updates[1].Logs)
	}
	if len(updates[2].Logs) != 1 || updates[2].Logs[0] != "done" {
		t.Fatalf("third update should only carry new logs, got %#v", updates[2].Logs)
	}
}

func TestSubscribeReturnsAPIErrorFromResult(t *testing.T) {
	stub := &queueStub{
		statuses: []string{`{"status":"COMPLETED"}`},
		result:   jsonResponse(http.StatusUnprocessableEntity, `{"detail":[{"msg":"The content could not be processed","type":"content_policy_violation"}]}`),
	}
	client := newStubClient(t, stub)

	_, err := client.Subscribe(context.Background(), "fal-ai/flux-pro/v1.1-ultra", map[string]any{"prompt": "x"}, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("StatusCode = %d", apiErr.StatusCode)
	}
	if !strings.Contains(apiErr.Error(), "content could not be processed") {
		t.Fatalf("Error() = %q", apiErr.Error())
	}
}

func TestSubscribeStopsOnContextCancel(t *testing.T) {
	stub := &queueStub{statuses: []string{`{"status":"IN_PROGRESS"}`}}
	client := newStubClient(t, stub)
	client.pollInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := client.Subscribe(ctx, "fal-ai/flux-pro/v1.1-ultra", map[string]any{"prompt": "x"}, nil)
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Subscribe did not return after cancel")
	}
}

func TestSubscribeRequiresAPIKey(t *testing.T) {
	client, err := NewClient(Options{})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	if client.Configured() {
		t.Fatalf("Configured() = true without key")
	}
	if _, err := client.Subscribe(context.Background(), "fal-ai/flux/dev", nil, nil); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("err = %v, want ErrMissingAPIKey", err)
	}
}

func TestMessage(t *testing.T) {
	tests := map[string]string{
		`{"detail":[{"msg":"first"},{"msg":"second"}]}`: "first",
		`{"detail":"plain detail"}`:                     "plain detail",
		`{"error":{"message":"nested"}}`:                "nested",
		`{"message":"top"}`:                             "top",
		`not json`:                                      "not json",
		`{}`:                                            "",
	}
	for body, want := range tests {
		if got := Message([]byte(body)); got != want {
			t.Fatalf("Message(%s) = %q, want %q", body, got, want)
		}
	}
}

func TestAppID(t *testing.T) {
	if got := appID("fal-ai/flux-pro/v1.1-ultra"); got != "fal-ai/flux-pro" {
		t.Fatalf("appID = %q", got)
	}
	if got := appID("fal-ai/veo3"); got != "fal-ai/veo3" {
		t.Fatalf("appID = %q", got)
	}
}
