// Package credentials reads and writes provider API keys kept in the
// integration_tokens table.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"mediagen/internal/infra"
	"mediagen/internal/sqlinline"
)

const ProviderFal = "fal"

// ErrEmptyToken is returned when an empty key would be stored.
var ErrEmptyToken = errors.New("credentials: token is required")

type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// FalAPIKey returns the stored fal key, or "" when none is stored.
func (s *Store) FalAPIKey(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderFal)
}

// SetFalAPIKey stores key under the fal provider, replacing any previous key.
func (s *Store) SetFalAPIKey(ctx context.Context, key string, props map[string]any) error {
	return s.SetToken(ctx, ProviderFal, key, props)
}

func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", fmt.Errorf("credentials: read %s token: %w", provider, err)
	}
	return strings.TrimSpace(token), nil
}

func (s *Store) SetToken(ctx context.Context, provider, token string, props map[string]any) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrEmptyToken
	}
	if props == nil {
		props = map[string]any{}
	}
	raw, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("credentials: encode properties: %w", err)
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw)
	return err
}

// ResolveFalKey prefers envKey and falls back to the stored key.
func ResolveFalKey(ctx context.Context, envKey string, store *Store) (string, error) {
	if key := strings.TrimSpace(envKey); key != "" {
		return key, nil
	}
	if store == nil {
		return "", nil
	}
	return store.FalAPIKey(ctx)
}
