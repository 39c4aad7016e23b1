// Package credentials keeps provider tokens in the integration_tokens table
// for deployments that do not pass them through the environment.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/yazidnurfadil/mosque-hero/internal/infra"
	"github.com/yazidnurfadil/mosque-hero/internal/sqlinline"
)

const (
	ProviderReplicate = "replicate"

	DefaultCacheTTL = time.Minute
)

// Store reads tokens through a short-lived cache so per-request lookups do
// not hit the database.
type Store struct {
	sql   infra.SQLExecutor
	cache *expirable.LRU[string, string]
}

func NewStore(sql infra.SQLExecutor) *Store {
	return NewStoreWithTTL(sql, DefaultCacheTTL)
}

// NewStoreWithTTL disables caching when ttl is not positive.
func NewStoreWithTTL(sql infra.SQLExecutor, ttl time.Duration) *Store {
	s := &Store{sql: sql}
	if ttl > 0 {
		s.cache = expirable.NewLRU[string, string](16, nil, ttl)
	}
	return s
}

func (s *Store) ReplicateAPIToken(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderReplicate)
}

// Token returns "" without error when no token is stored for provider.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	if s.cache != nil {
		if token, ok := s.cache.Get(provider); ok {
			return token, nil
		}
	}
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", fmt.Errorf("credentials: load %s token: %w", provider, err)
	}
	token = strings.TrimSpace(token)
	if s.cache != nil && token != "" {
		s.cache.Add(provider, token)
	}
	return token, nil
}

func (s *Store) SetReplicateAPIToken(ctx context.Context, token string, props map[string]any) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("replicate api token is required")
	}
	return s.upsert(ctx, ProviderReplicate, token, props)
}

func (s *Store) upsert(ctx context.Context, provider, token string, props map[string]any) error {
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw); err != nil {
		return fmt.Errorf("credentials: store %s token: %w", provider, err)
	}
	if s.cache != nil {
		s.cache.Remove(provider)
	}
	return nil
}
