package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mediagen/internal/domain"
	"mediagen/internal/infra"
	"mediagen/internal/sqlinline"
)

// GenerationRepositoryPG stores generation records in PostgreSQL.
type GenerationRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewGenerationRepository creates a repository over sql, usually an
// *infra.SQLRunner.
func NewGenerationRepository(sql infra.SQLExecutor) *GenerationRepositoryPG {
	return &GenerationRepositoryPG{sql: sql}
}

// EnsureSchema creates the tables the repository needs.
func (r *GenerationRepositoryPG) EnsureSchema(ctx context.Context) error {
	for _, q := range []string{
		sqlinline.QCreateIntegrationTokensTable,
		sqlinline.QCreateGenerationsTable,
		sqlinline.QCreateGenerationAttemptsTable,
		sqlinline.QCreateGenerationsExpiryIndex,
	} {
		if _, err := r.sql.Exec(ctx, q); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// CreateGeneration inserts a pending record.
func (r *GenerationRepositoryPG) CreateGeneration(ctx context.Context, rec domain.GenerationRecord) error {
	meta, err := marshalMetadata(rec.Metadata)
	if err != nil {
		return err
	}
	status := rec.Status
	if status == "" {
		status = domain.GenerationPending
	}
	_, err = r.sql.Exec(ctx, sqlinline.QInsertGeneration,
		rec.ID,
		rec.UserID,
		rec.SessionID,
		rec.Prompt,
		rec.Model,
		string(status),
		meta,
		rec.CreatedAt,
		rec.ExpiresAt,
	)
	return err
}

// FinalizeGeneration applies the terminal outcome to a pending record.
func (r *GenerationRepositoryPG) FinalizeGeneration(ctx context.Context, id string, out domain.GenerationOutcome) error {
	if !out.Status.Terminal() {
		return fmt.Errorf("finalize %s: status %q is not terminal", id, out.Status)
	}
	meta, err := marshalMetadata(out.Metadata)
	if err != nil {
		return err
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QFinalizeGeneration, id, string(out.Status), out.Model, out.OutputURL, meta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var status string
	if err := r.sql.QueryRow(ctx, sqlinline.QSelectGenerationStatus, id).Scan(&status); err != nil {
		if infra.IsNoRows(err) {
			return domain.ErrNotFound
		}
		return err
	}
	return domain.ErrAlreadyFinal
}

// RecordAttempt inserts one dispatch audit row.
func (r *GenerationRepositoryPG) RecordAttempt(ctx context.Context, a domain.GenerationAttempt) error {
	_, err := r.sql.Exec(ctx, sqlinline.QInsertGenerationAttempt,
		a.ID,
		a.GenerationID,
		a.Sequence,
		a.Model,
		a.Family,
		string(a.Status),
		a.ErrorKind,
		a.HTTPStatus,
		a.ProviderID,
		a.Elapsed.Milliseconds(),
		a.CreatedAt,
	)
	return err
}

// GetGeneration fetches a record by id.
func (r *GenerationRepositoryPG) GetGeneration(ctx context.Context, id string) (*domain.GenerationRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	row := r.sql.QueryRow(ctx, sqlinline.QSelectGeneration, id)
	var (
		rec    domain.GenerationRecord
		status string
		meta   []byte
	)
	if err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.SessionID,
		&rec.Prompt,
		&rec.Model,
		&rec.OutputURL,
		&status,
		&meta,
		&rec.CreatedAt,
		&rec.UpdatedAt,
		&rec.ExpiresAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	rec.Status = domain.GenerationStatus(status)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &rec, nil
}

// ListAttempts returns the attempts of a generation in dispatch order.
func (r *GenerationRepositoryPG) ListAttempts(ctx context.Context, generationID string) ([]domain.GenerationAttempt, error) {
	if _, err := uuid.Parse(generationID); err != nil {
		return nil, nil
	}
	rows, err := r.sql.Query(ctx, sqlinline.QSelectGenerationAttempts, generationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.GenerationAttempt
	for rows.Next() {
		var (
			a         domain.GenerationAttempt
			status    string
			elapsedMS int64
		)
		if err := rows.Scan(&a.ID, &a.GenerationID, &a.Sequence, &a.Model, &a.Family, &status, &a.ErrorKind, &a.HTTPStatus, &a.ProviderID, &elapsedMS, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Status = domain.GenerationStatus(status)
		a.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		out = append(out, a)
	}
	return out, rows.Err()
}

// PurgeExpired deletes anonymous records that expired before cutoff.
func (r *GenerationRepositoryPG) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QPurgeExpiredGenerations, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func marshalMetadata(meta map[string]any) ([]byte, error) {
	if len(meta) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return raw, nil
}
