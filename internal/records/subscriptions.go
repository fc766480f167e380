package records

import (
	"context"
	"errors"
	"fmt"

	"github.com/kiranshivaraju/errorwatch/internal/cache"
	"github.com/kiranshivaraju/errorwatch/internal/store"
	"github.com/kiranshivaraju/errorwatch/pkg/models"
)

type subscriptionAttrs struct {
	Subscription *models.PushSubscription `json:"Subscription,omitempty"`
}

var subscriptionMapper = store.Mapper[models.Subscription, subscriptionAttrs]{
	ToWire: func(s models.Subscription) subscriptionAttrs {
		sub := s.Subscription
		return subscriptionAttrs{Subscription: &sub}
	},
	FromWire: func(m store.Meta, a subscriptionAttrs) models.Subscription {
		s := models.Subscription{TerminalID: m.ID}
		if a.Subscription != nil {
			s.Subscription = *a.Subscription
		}
		return s
	},
}

// SubscriptionStore keeps one push subscription per terminal, keyed by terminal id.
type SubscriptionStore struct {
	repo *store.Repository[models.Subscription, subscriptionAttrs]
}

func NewSubscriptionStore(backend store.Backend, c cache.Cache, opts store.Options) *SubscriptionStore {
	return &SubscriptionStore{
		repo: store.NewRepository(backend, c, models.DataTypeSubscription, subscriptionMapper, opts),
	}
}

// Get returns ok=false when the terminal has no subscription.
func (s *SubscriptionStore) Get(ctx context.Context, terminalID string) (*models.Subscription, bool, error) {
	sub, err := s.repo.Get(ctx, terminalID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get subscription %s: %w", terminalID, err)
	}
	return &sub, true, nil
}

// Put stores sub, replacing any existing subscription for the terminal.
func (s *SubscriptionStore) Put(ctx context.Context, sub models.Subscription) (models.Subscription, error) {
	if sub.TerminalID == "" {
		return models.Subscription{}, fmt.Errorf("subscription terminal id is required")
	}
	return upsert(ctx, s.repo, sub.TerminalID, sub, subscriptionMapper.ToWire(sub))
}
