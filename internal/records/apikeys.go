package records

import (
	"context"
	"fmt"
	"time"

	"github.com/kiranshivaraju/errorwatch/internal/store"
	"github.com/kiranshivaraju/errorwatch/pkg/models"
)

type apiKeyAttrs struct {
	Name       string   `json:"name,omitempty"`
	KeyHash    string   `json:"key_hash,omitempty"`
	KeyPrefix  string   `json:"key_prefix,omitempty"`
	Scopes     []string `json:"scopes,omitempty"`
	LastUsedAt *int64   `json:"last_used_at,omitempty"`
}

var apiKeyMapper = store.Mapper[*models.APIKey, apiKeyAttrs]{
	ToWire: func(k *models.APIKey) apiKeyAttrs {
		a := apiKeyAttrs{Name: k.Name, KeyHash: k.KeyHash, KeyPrefix: k.KeyPrefix, Scopes: k.Scopes}
		if k.LastUsedAt != nil {
			ms := k.LastUsedAt.UnixMilli()
			a.LastUsedAt = &ms
		}
		return a
	},
	FromWire: func(m store.Meta, a apiKeyAttrs) *models.APIKey {
		k := &models.APIKey{
			ID:        m.ID,
			Name:      a.Name,
			KeyHash:   a.KeyHash,
			KeyPrefix: a.KeyPrefix,
			Scopes:    a.Scopes,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		}
		if a.LastUsedAt != nil {
			t := time.UnixMilli(*a.LastUsedAt).UTC()
			k.LastUsedAt = &t
		}
		return k
	},
}

// APIKeyStore persists hashed API keys. Keys are never cached.
type APIKeyStore struct {
	repo  *store.Repository[*models.APIKey, apiKeyAttrs]
	clock func() time.Time
}

func NewAPIKeyStore(backend store.Backend, opts store.Options) *APIKeyStore {
	opts.CacheEnabled = false
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &APIKeyStore{
		repo:  store.NewRepository(backend, nil, models.DataTypeAPIKey, apiKeyMapper, opts),
		clock: clock,
	}
}

// Create stores key. key.ID is generated when empty.
func (s *APIKeyStore) Create(ctx context.Context, key *models.APIKey) (*models.APIKey, error) {
	if key.KeyHash == "" || key.KeyPrefix == "" {
		return nil, fmt.Errorf("api key hash and prefix are required")
	}
	return s.repo.Create(ctx, key.ID, key)
}

// List returns every key, newest first.
func (s *APIKeyStore) List(ctx context.Context) ([]*models.APIKey, error) {
	return s.repo.List(ctx)
}

// GetByPrefix returns every key whose prefix matches. Prefixes are short and may collide,
// so callers verify the full key against each hash.
func (s *APIKeyStore) GetByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	var out []*models.APIKey
	for _, k := range all {
		if k.KeyPrefix == prefix {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *APIKeyStore) TouchLastUsed(ctx context.Context, id string) error {
	ms := s.clock().UnixMilli()
	if _, err := s.repo.Update(ctx, id, apiKeyAttrs{LastUsedAt: &ms}); err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}
