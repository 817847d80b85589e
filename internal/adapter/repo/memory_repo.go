package repo

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"mediagen/internal/domain"
)

// GenerationRepositoryMemory keeps records in process memory. It is used
// when no database is configured.
type GenerationRepositoryMemory struct {
	mu       sync.RWMutex
	records  map[string]*domain.GenerationRecord
	attempts map[string][]domain.GenerationAttempt
	now      func() time.Time
}

// NewGenerationMemoryRepository creates an empty in-memory repository.
func NewGenerationMemoryRepository() *GenerationRepositoryMemory {
	return &GenerationRepositoryMemory{
		records:  map[string]*domain.GenerationRecord{},
		attempts: map[string][]domain.GenerationAttempt{},
		now:      time.Now,
	}
}

func (m *GenerationRepositoryMemory) CreateGeneration(_ context.Context, rec domain.GenerationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[rec.ID]; exists {
		return domain.ErrDuplicateID
	}
	if rec.Status == "" {
		rec.Status = domain.GenerationPending
	}
	rec.Metadata = maps.Clone(rec.Metadata)
	m.records[rec.ID] = &rec
	return nil
}

func (m *GenerationRepositoryMemory) FinalizeGeneration(_ context.Context, id string, out domain.GenerationOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return domain.ErrNotFound
	}
	if rec.Status.Terminal() {
		return domain.ErrAlreadyFinal
	}
	rec.Status = out.Status
	if out.Model != "" {
		rec.Model = out.Model
	}
	rec.OutputURL = out.OutputURL
	if rec.Metadata == nil {
		rec.Metadata = map[string]any{}
	}
	maps.Copy(rec.Metadata, out.Metadata)
	rec.UpdatedAt = m.now()
	return nil
}

func (m *GenerationRepositoryMemory) RecordAttempt(_ context.Context, a domain.GenerationAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[a.GenerationID] = append(m.attempts[a.GenerationID], a)
	return nil
}

func (m *GenerationRepositoryMemory) GetGeneration(_ context.Context, id string) (*domain.GenerationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *rec
	cp.Metadata = maps.Clone(rec.Metadata)
	return &cp, nil
}

func (m *GenerationRepositoryMemory) ListAttempts(_ context.Context, generationID string) ([]domain.GenerationAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := slices.Clone(m.attempts[generationID])
	slices.SortStableFunc(out, func(a, b domain.GenerationAttempt) int { return a.Sequence - b.Sequence })
	return out, nil
}

func (m *GenerationRepositoryMemory) PurgeExpired(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, rec := range m.records {
		if rec.Anonymous() && rec.ExpiresAt != nil && rec.ExpiresAt.Before(cutoff) {
			delete(m.records, id)
			delete(m.attempts, id)
			n++
		}
	}
	return n, nil
}

var (
	_ domain.GenerationRepository = (*GenerationRepositoryMemory)(nil)
	_ domain.RetentionRepository  = (*GenerationRepositoryMemory)(nil)
	_ domain.GenerationRepository = (*GenerationRepositoryPG)(nil)
	_ domain.RetentionRepository  = (*GenerationRepositoryPG)(nil)
)
