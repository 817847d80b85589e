package credentials

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type stubExecutor struct {
	token   string
	err     error
	queried []any
	exec    struct {
		query string
		args  []any
	}
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.exec.query = query
	s.exec.args = args
	return pgconn.CommandTag{}, s.err
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	s.queried = args
	return stubRow{token: s.token, err: s.err}
}

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

type stubRow struct {
	token string
	err   error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) == 0 {
		return errors.New("no dest")
	}
	ptr, ok := dest[0].(*string)
	if !ok {
		return errors.New("invalid dest")
	}
	*ptr = r.token
	return nil
}

func TestFalAPIKey(t *testing.T) {
	exec := &stubExecutor{token: " fal-123 "}
	key, err := NewStore(exec).FalAPIKey(context.Background())
	if err != nil {
		t.Fatalf("FalAPIKey error: %v", err)
	}
	if key != "fal-123" {
		t.Fatalf("expected fal-123, got %q", key)
	}
	if len(exec.queried) != 1 || exec.queried[0] != ProviderFal {
		t.Fatalf("expected provider argument %q, got %v", ProviderFal, exec.queried)
	}
}

func TestFalAPIKey_NoRows(t *testing.T) {
	key, err := NewStore(&stubExecutor{err: pgx.ErrNoRows}).FalAPIKey(context.Background())
	if err != nil {
		t.Fatalf("FalAPIKey error: %v", err)
	}
	if key != "" {
		t.Fatalf("expected empty key, got %q", key)
	}
}

func TestFalAPIKey_QueryError(t *testing.T) {
	_, err := NewStore(&stubExecutor{err: errors.New("conn refused")}).FalAPIKey(context.Background())
	if err == nil || !strings.Contains(err.Error(), "conn refused") {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestSetFalAPIKey(t *testing.T) {
	exec := &stubExecutor{}
	if err := NewStore(exec).SetFalAPIKey(context.Background(), " secret ", map[string]any{"source": "cli"}); err != nil {
		t.Fatalf("SetFalAPIKey error: %v", err)
	}
	if len(exec.exec.args) != 3 {
		t.Fatalf("expected 3 args, got %d", len(exec.exec.args))
	}
	if v, ok := exec.exec.args[1].(string); !ok || v != "secret" {
		t.Fatalf("expected trimmed secret argument, got %T %v", exec.exec.args[1], exec.exec.args[1])
	}
	if raw, _ := exec.exec.args[2].([]byte); string(raw) != `{"source":"cli"}` {
		t.Fatalf("expected properties json, got %s", raw)
	}
}

func TestSetFalAPIKeyEmpty(t *testing.T) {
	if err := NewStore(&stubExecutor{}).SetFalAPIKey(context.Background(), " ", nil); !errors.Is(err, ErrEmptyToken) {
		t.Fatalf("expected ErrEmptyToken, got %v", err)
	}
}

func TestResolveFalKey(t *testing.T) {
	store := NewStore(&stubExecutor{token: "stored"})
	if key, _ := ResolveFalKey(context.Background(), " env ", store); key != "env" {
		t.Fatalf("env key should win, got %q", key)
	}
	if key, _ := ResolveFalKey(context.Background(), "", store); key != "stored" {
		t.Fatalf("stored key expected, got %q", key)
	}
	if key, err := ResolveFalKey(context.Background(), "", nil); key != "" || err != nil {
		t.Fatalf("nil store should yield empty key, got %q %v", key, err)
	}
}
