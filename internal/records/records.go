// Package records provides typed stores for every record kind errorwatch persists:
// error notifications, feature info, admin registrations, push subscriptions and API keys.
// Each store is a store.Repository bound to one data type.
package records

import (
	"context"
	"errors"

	"github.com/kiranshivaraju/errorwatch/internal/store"
)

// upsert creates id or, when it already exists, merges patch over it.
func upsert[D any, W any](ctx context.Context, repo *store.Repository[D, W], id string, d D, patch W) (D, error) {
	created, err := repo.Create(ctx, id, d)
	if err == nil {
		return created, nil
	}
	if !errors.Is(err, store.ErrDuplicateKey) {
		return created, err
	}
	return repo.Update(ctx, id, patch)
}
