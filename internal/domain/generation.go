package domain

import "time"

// GenerationStatus enumerates the lifecycle of a generation record.
type GenerationStatus string

const (
	GenerationPending   GenerationStatus = "pending"
	GenerationCompleted GenerationStatus = "completed"
	GenerationFailed    GenerationStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s GenerationStatus) Terminal() bool {
	return s == GenerationCompleted || s == GenerationFailed
}

// GenerationRecord is the persisted audit row for one top-level request.
type GenerationRecord struct {
	ID        string
	UserID    string
	SessionID string
	Prompt    string
	Model     string
	OutputURL string
	Status    GenerationStatus
	Metadata  map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt *time.Time
}

// Anonymous reports whether the record belongs to a session without a user.
func (r GenerationRecord) Anonymous() bool {
	return r.UserID == ""
}

// GenerationOutcome is the single terminal update applied to a pending record.
type GenerationOutcome struct {
	Status    GenerationStatus
	Model     string
	OutputURL string
	Metadata  map[string]any
}

// GenerationAttempt is one dispatch against one provider model.
type GenerationAttempt struct {
	ID           string
	GenerationID string
	Sequence     int
	Model        string
	Family       string
	Status       GenerationStatus
	ErrorKind    string
	HTTPStatus   int
	ProviderID   string
	Elapsed      time.Duration
	CreatedAt    time.Time
}
