package infra

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

type recordingExecutor struct {
	queries []string
}

func (r *recordingExecutor) Exec(_ context.Context, query string, _ ...any) (pgconn.CommandTag, error) {
	r.queries = append(r.queries, query)
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (r *recordingExecutor) QueryRow(_ context.Context, query string, _ ...any) pgx.Row {
	r.queries = append(r.queries, query)
	return errorRow{err: pgx.ErrNoRows}
}

func (r *recordingExecutor) Query(_ context.Context, query string, _ ...any) (pgx.Rows, error) {
	r.queries = append(r.queries, query)
	return nil, errors.New("not implemented")
}

func TestExtractMarker(t *testing.T) {
	marker, stmt, err := ExtractMarker("\n--sql 0f6a1d52-3c8b-4d0e-9a55-2b7c9e4f1a10\nselect 1;\n")
	if err != nil {
		t.Fatalf("ExtractMarker returned error: %v", err)
	}
	if marker != "0f6a1d52-3c8b-4d0e-9a55-2b7c9e4f1a10" {
		t.Fatalf("marker = %q", marker)
	}
	if strings.TrimSpace(stmt) != "select 1;" {
		t.Fatalf("statement = %q, want select 1;", stmt)
	}
}

func TestExtractMarkerRejectsUntaggedQuery(t *testing.T) {
	if _, _, err := ExtractMarker("select 1;"); !errors.Is(err, errMarkerMissing) {
		t.Fatalf("err = %v, want errMarkerMissing", err)
	}
	if _, _, err := ExtractMarker("   "); !errors.Is(err, errEmptyQuery) {
		t.Fatalf("err = %v, want errEmptyQuery", err)
	}
}

func TestSQLRunnerStripsMarkerBeforeExecuting(t *testing.T) {
	exec := &recordingExecutor{}
	runner := NewSQLRunner(exec, zerolog.Nop())

	if _, err := runner.Exec(context.Background(), "--sql 0f6a1d52-3c8b-4d0e-9a55-2b7c9e4f1a10\nupdate t set x = 1;"); err != nil {
		t.Fatalf("Exec returned error: %v", err)
	}
	if len(exec.queries) != 1 || strings.Contains(exec.queries[0], "--sql") {
		t.Fatalf("marker forwarded to pool: %#v", exec.queries)
	}

	var v int
	if err := runner.QueryRow(context.Background(), "--sql 0f6a1d52-3c8b-4d0e-9a55-2b7c9e4f1a10\nselect 1;").Scan(&v); !IsNoRows(err) {
		t.Fatalf("QueryRow error = %v, want no rows", err)
	}
}

func TestSQLRunnerRejectsUntaggedQuery(t *testing.T) {
	exec := &recordingExecutor{}
	runner := NewSQLRunner(exec, zerolog.Nop())

	if _, err := runner.Exec(context.Background(), "delete from t;"); err == nil {
		t.Fatalf("expected error for untagged query")
	}
	if len(exec.queries) != 0 {
		t.Fatalf("untagged query reached the pool")
	}
}
