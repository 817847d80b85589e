package main

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"mediagen/internal/adapter/repo"
	"mediagen/internal/domain"
	"mediagen/internal/infra"
)

type countingRepo struct {
	calls atomic.Int32
	err   error
}

func (r *countingRepo) PurgeExpired(context.Context, time.Time) (int64, error) {
	r.calls.Add(1)
	return 0, r.err
}

func TestSweeperPurgesExpired(t *testing.T) {
	ctx := context.Background()
	mem := repo.NewGenerationMemoryRepository()
	now := time.Now()
	past := now.Add(-time.Minute)
	_ = mem.CreateGeneration(ctx, domain.GenerationRecord{ID: "anon", ExpiresAt: &past})
	_ = mem.CreateGeneration(ctx, domain.GenerationRecord{ID: "kept", UserID: "u"})

	s := &sweeper{repo: mem, logger: *infra.DiscardLogger(), now: func() time.Time { return now }}
	s.sweep(ctx)

	if _, err := mem.GetGeneration(ctx, "anon"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expired record survived: %v", err)
	}
	if _, err := mem.GetGeneration(ctx, "kept"); err != nil {
		t.Fatalf("user record purged: %v", err)
	}
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	r := &countingRepo{err: errors.New("db down")}
	s := &sweeper{repo: r, logger: *infra.DiscardLogger(), interval: 5 * time.Millisecond, now: time.Now}

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after cancel")
	}
	if r.calls.Load() < 2 {
		t.Fatalf("expected repeated sweeps despite errors, got %d", r.calls.Load())
	}
}
