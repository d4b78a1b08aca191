package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/melodix/backend/internal/models"
	"github.com/melodix/backend/internal/tier"
)

type mockLister struct {
	expired []*models.Entitlement
}

func (m *mockLister) ListExpired(_ context.Context, _ time.Time, limit int) ([]*models.Entitlement, error) {
	if len(m.expired) > limit {
		return m.expired[:limit], nil
	}
	return m.expired, nil
}

type mockDowngrader struct {
	applied map[uuid.UUID]tier.Tier
}

func (m *mockDowngrader) ApplyTier(_ context.Context, accountID uuid.UUID, t tier.Tier) (tier.Ceilings, error) {
	if m.applied == nil {
		m.applied = make(map[uuid.UUID]tier.Tier)
	}
	m.applied[accountID] = t
	return tier.CeilingsFor(t), nil
}

func TestExpirySweepDowngradesLapsedAccounts(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	lapsed := &models.Entitlement{AccountID: uuid.New(), Tier: tier.Premium, SubscriptionExpiresAt: &past, Active: true}
	current := &models.Entitlement{AccountID: uuid.New(), Tier: tier.Premium, SubscriptionExpiresAt: &future, Active: true}

	lister := &mockLister{expired: []*models.Entitlement{lapsed, current}}
	down := &mockDowngrader{}
	w := NewExpirySweepWorker(lister, down, nil)

	if err := w.Work(context.Background(), &river.Job[ExpirySweepArgs]{Args: ExpirySweepArgs{BatchSize: 10}}); err != nil {
		t.Fatalf("Work: %v", err)
	}

	if got, ok := down.applied[lapsed.AccountID]; !ok || got != tier.Free {
		t.Errorf("lapsed account should be downgraded to free, got %v", down.applied)
	}
	if _, ok := down.applied[current.AccountID]; ok {
		t.Error("unexpired account must not be downgraded")
	}
}

func TestExpirySweepEmptyBatch(t *testing.T) {
	w := NewExpirySweepWorker(&mockLister{}, &mockDowngrader{}, nil)
	if err := w.Work(context.Background(), &river.Job[ExpirySweepArgs]{Args: ExpirySweepArgs{}}); err != nil {
		t.Fatalf("Work on empty batch: %v", err)
	}
}
