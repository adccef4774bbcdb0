package pool

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

type fakeGuardStore struct {
	activeCampaigns int64
	pendingLeads    int64
}

func (f *fakeGuardStore) CountActiveCampaigns(context.Context, uuid.UUID) (int64, error) {
	return f.activeCampaigns, nil
}

func (f *fakeGuardStore) CountPendingCampaignLeads(context.Context, uuid.UUID) (int64, error) {
	return f.pendingLeads, nil
}

func TestReleaseGuardCheck(t *testing.T) {
	tests := []struct {
		name       string
		active     int64
		pending    int64
		wantReason string
	}{
		{"nothing in flight", 0, 0, ""},
		{"active campaign", 1, 0, ReasonActiveCampaigns},
		{"pending messages", 0, 3, ReasonPendingMessages},
		{"campaigns win over pending", 2, 5, ReasonActiveCampaigns},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			guard := NewReleaseGuard(&fakeGuardStore{activeCampaigns: tt.active, pendingLeads: tt.pending})
			err := guard.Check(context.Background(), uuid.New())

			if tt.wantReason == "" {
				if err != nil {
					t.Fatalf("expected release allowed, got %v", err)
				}
				return
			}
			reason, blocked := IsReleaseBlocked(err)
			if !blocked {
				t.Fatalf("expected ReleaseBlockedError, got %v", err)
			}
			if reason != tt.wantReason {
				t.Errorf("expected reason %q, got %q", tt.wantReason, reason)
			}
		})
	}
}
