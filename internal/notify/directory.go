// Package notify resolves which terminals must hear about an error and delivers
// a push notification to each of them.
package notify

import (
	"context"
	"fmt"

	"github.com/kiranshivaraju/errorwatch/pkg/models"
)

// AdminLister lists administrator registrations.
type AdminLister interface {
	List(ctx context.Context) ([]models.AdminRegistration, error)
}

// SubscriptionGetter returns ok=false when a terminal has no subscription.
type SubscriptionGetter interface {
	Get(ctx context.Context, terminalID string) (*models.Subscription, bool, error)
}

// SubscriberDirectory answers who gets notified and where.
type SubscriberDirectory struct {
	admins        AdminLister
	subscriptions SubscriptionGetter
}

func NewSubscriberDirectory(admins AdminLister, subscriptions SubscriptionGetter) *SubscriberDirectory {
	return &SubscriberDirectory{admins: admins, subscriptions: subscriptions}
}

// ResolveRecipients returns the union of every admin's terminal ids, de-duplicated,
// in order of first appearance.
func (d *SubscriberDirectory) ResolveRecipients(ctx context.Context) ([]string, error) {
	admins, err := d.admins.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}

	seen := make(map[string]struct{})
	recipients := []string{}
	for _, a := range admins {
		for _, id := range a.TerminalIDs {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			recipients = append(recipients, id)
		}
	}
	return recipients, nil
}

func (d *SubscriberDirectory) ResolveSubscription(ctx context.Context, terminalID string) (*models.Subscription, bool, error) {
	return d.subscriptions.Get(ctx, terminalID)
}
