package fal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"mediagen/internal/infra"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("fal: api key is required")

const (
	defaultBaseURL      = "https://queue.fal.run"
	defaultPollInterval = time.Second
	maxBodyBytes        = 8 << 20
)

// Options configures the fal queue client.
type Options struct {
	APIKey         string
	BaseURL        string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	PollInterval   time.Duration
	RequestTimeout time.Duration
}

// Client submits jobs to the fal queue and polls them to completion.
type Client struct {
	apiKey       string
	baseURL      string
	pollInterval time.Duration
	httpClient   *http.Client
	logger       zerolog.Logger
}

// QueueStatus is the state reported by the queue status endpoint.
type QueueStatus string

const (
	StatusInQueue    QueueStatus = "IN_QUEUE"
	StatusInProgress QueueStatus = "IN_PROGRESS"
	StatusCompleted  QueueStatus = "COMPLETED"
)

// QueueUpdate is one progress observation. Logs holds only lines not
// reported by an earlier update.
type QueueUpdate struct {
	RequestID     string
	Status        QueueStatus
	QueuePosition int
	Logs          []string
}

// Result is a completed job.
type Result struct {
	RequestID string
	Data      json.RawMessage
}

// APIError is a non-2xx answer from the queue. Body is kept verbatim so
// callers can classify it.
type APIError struct {
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	msg := Message(e.Body)
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("fal: status %d: %s", e.StatusCode, msg)
}

// Message pulls the most useful human readable text out of an error body.
func Message(body []byte) string {
	if !gjson.ValidBytes(body) {
		return strings.TrimSpace(string(body))
	}
	for _, path := range []string{"detail.0.msg", "detail", "error.message", "error", "message"} {
		if v := gjson.GetBytes(body, path); v.Exists() && v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

type submitResponse struct {
	RequestID   string `json:"request_id"`
	StatusURL   string `json:"status_url"`
	ResponseURL string `json:"response_url"`
}

type statusResponse struct {
	Status        QueueStatus `json:"status"`
	QueuePosition int         `json:"queue_position"`
	Logs          []struct {
		Message string `json:"message"`
	} `json:"logs"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("fal: invalid base url: %w", err)
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	return &Client{
		apiKey:       strings.TrimSpace(opts.APIKey),
		baseURL:      baseURL,
		pollInterval: poll,
		httpClient:   httpClient,
		logger:       infra.LoggerOrDiscard(opts.Logger),
	}, nil
}

// Configured reports whether the client has credentials.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// Subscribe submits input for model and waits for the job to finish,
// reporting progress to onUpdate from the calling goroutine. Cancelling ctx
// stops polling; the queued job itself is left alone.
func (c *Client) Subscribe(ctx context.Context, model string, input map[string]any, onUpdate func(QueueUpdate)) (*Result, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	model = strings.Trim(strings.TrimSpace(model), "/")
	if model == "" {
		return nil, errors.New("fal: model is required")
	}

	sub, err := c.submit(ctx, model, input)
	if err != nil {
		return nil, err
	}
	log := c.logger.With().Str("model", model).Str("fal_request_id", sub.RequestID).Logger()
	log.Debug().Msg("fal: job queued")

	statusURL := sub.StatusURL
	if statusURL == "" {
		statusURL = fmt.Sprintf("%s/%s/requests/%s/status", c.baseURL, appID(model), sub.RequestID)
	}
	responseURL := sub.ResponseURL
	if responseURL == "" {
		responseURL = fmt.Sprintf("%s/%s/requests/%s", c.baseURL, appID(model), sub.RequestID)
	}

	seenLogs := 0
	for {
		st, err := c.status(ctx, statusURL)
		if err != nil {
			return nil, err
		}
		if onUpdate != nil {
			update := QueueUpdate{RequestID: sub.RequestID, Status: st.Status, QueuePosition: st.QueuePosition}
			for i := seenLogs; i < len(st.Logs); i++ {
				update.Logs = append(update.Logs, st.Logs[i].Message)
			}
			if len(st.Logs) > seenLogs {
				seenLogs = len(st.Logs)
			}
			onUpdate(update)
		}
		if st.Status == StatusCompleted {
			break
		}

		timer := time.NewTimer(c.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	body, err := c.do(ctx, http.MethodGet, responseURL, nil)
	if err != nil {
		return nil, err
	}
	log.Debug().Int("bytes", len(body)).Msg("fal: job completed")
	return &Result{RequestID: sub.RequestID, Data: json.RawMessage(body)}, nil
}

func (c *Client) submit(ctx context.Context, model string, input map[string]any) (*submitResponse, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("fal: encode input: %w", err)
	}
	body, err := c.do(ctx, http.MethodPost, c.baseURL+"/"+model, payload)
	if err != nil {
		return nil, err
	}
	var sub submitResponse
	if err := json.Unmarshal(body, &sub); err != nil {
		return nil, fmt.Errorf("fal: decode submit response: %w", err)
	}
	if sub.RequestID == "" {
		return nil, errors.New("fal: submit response missing request_id")
	}
	return &sub, nil
}

func (c *Client) status(ctx context.Context, statusURL string) (*statusResponse, error) {
	u, err := url.Parse(statusURL)
	if err != nil {
		return nil, fmt.Errorf("fal: invalid status url: %w", err)
	}
	q := u.Query()
	q.Set("logs", "1")
	u.RawQuery = q.Encode()

	body, err := c.do(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	var st statusResponse
	if err := json.Unmarshal(body, &st); err != nil {
		return nil, fmt.Errorf("fal: decode status: %w", err)
	}
	return &st, nil
}

func (c *Client) do(ctx context.Context, method, target string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("fal: build request: %w", err)
	}
	req.Header.Set("Authorization", "Key "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fal: %s %s: %w", method, redact(target), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("fal: read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: body}
	}
	return body, nil
}

// appID is the owner/app prefix the queue uses for request urls, e.g.
// fal-ai/flux-pro for fal-ai/flux-pro/v1.1-ultra.
func appID(model string) string {
	parts := strings.Split(model, "/")
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return strings.Join(parts, "/")
}

func redact(target string) string {
	if i := strings.IndexByte(target, '?'); i >= 0 {
		return target[:i]
	}
	return target
}
