package pool

import (
	"context"

	"github.com/google/uuid"
)

// GuardStore exposes the outbound-work counts the release guard decides on.
type GuardStore interface {
	CountActiveCampaigns(ctx context.Context, userID uuid.UUID) (int64, error)
	CountPendingCampaignLeads(ctx context.Context, userID uuid.UUID) (int64, error)
}

// ReleaseGuard forbids releasing a user's instance slot while the user still
// has campaigns running or messages waiting to go out. It gates only the
// regular disconnect path; administrative force-disconnect bypasses it.
type ReleaseGuard struct {
	store GuardStore
}

// NewReleaseGuard creates a new release guard
func NewReleaseGuard(store GuardStore) *ReleaseGuard {
	return &ReleaseGuard{store: store}
}

// Check returns nil when the user's slot may be released, or a
// ReleaseBlockedError naming what is still in flight.
func (g *ReleaseGuard) Check(ctx context.Context, userID uuid.UUID) error {
	active, err := g.store.CountActiveCampaigns(ctx, userID)
	if err != nil {
		return err
	}
	if active > 0 {
		return &ReleaseBlockedError{Reason: ReasonActiveCampaigns}
	}

	pending, err := g.store.CountPendingCampaignLeads(ctx, userID)
	if err != nil {
		return err
	}
	if pending > 0 {
		return &ReleaseBlockedError{Reason: ReasonPendingMessages}
	}

	return nil
}
