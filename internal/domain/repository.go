package domain

import (
	"context"
	"time"
)

// GenerationRepository persists generation records and their attempts.
type GenerationRepository interface {
	CreateGeneration(ctx context.Context, rec GenerationRecord) error
	FinalizeGeneration(ctx context.Context, id string, out GenerationOutcome) error
	RecordAttempt(ctx context.Context, a GenerationAttempt) error
	GetGeneration(ctx context.Context, id string) (*GenerationRecord, error)
	ListAttempts(ctx context.Context, generationID string) ([]GenerationAttempt, error)
}

// RetentionRepository removes anonymous records past their expiry.
type RetentionRepository interface {
	PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
