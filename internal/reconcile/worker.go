package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/melodix/backend/internal/metrics"
	"github.com/melodix/backend/internal/models"
	"github.com/melodix/backend/internal/tier"
)

const defaultBatchSize = 100

type ExpirySweepArgs struct {
	BatchSize int `json:"batch_size"`
}

func (ExpirySweepArgs) Kind() string { return "expiry_sweep" }

// EntitlementLister finds entitlements whose subscription has lapsed.
type EntitlementLister interface {
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.Entitlement, error)
}

// Downgrader rewrites an account's tier through the tier policy.
type Downgrader interface {
	ApplyTier(ctx context.Context, accountID uuid.UUID, t tier.Tier) (tier.Ceilings, error)
}

// ExpirySweepWorker downgrades accounts with elapsed subscriptions back to
// the free tier. It runs as a periodic River job.
type ExpirySweepWorker struct {
	river.WorkerDefaults[ExpirySweepArgs]
	entitlements  EntitlementLister
	subscriptions Downgrader
	log           *slog.Logger
	now           func() time.Time
}

func NewExpirySweepWorker(entitlements EntitlementLister, subscriptions Downgrader, log *slog.Logger) *ExpirySweepWorker {
	if log == nil {
		log = slog.Default()
	}
	return &ExpirySweepWorker{
		entitlements:  entitlements,
		subscriptions: subscriptions,
		log:           log,
		now:           time.Now,
	}
}

func (w *ExpirySweepWorker) Work(ctx context.Context, job *river.Job[ExpirySweepArgs]) error {
	batch := job.Args.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	now := w.now()
	expired, err := w.entitlements.ListExpired(ctx, now, batch)
	if err != nil {
		return fmt.Errorf("list expired entitlements: %w", err)
	}
	for _, e := range expired {
		if !tier.IsExpired(e.SubscriptionExpiresAt, now) {
			continue
		}
		if _, err := w.subscriptions.ApplyTier(ctx, e.AccountID, tier.Free); err != nil {
			return fmt.Errorf("downgrade account %s: %w", e.AccountID, err)
		}
		metrics.ExpiryDowngrades.Inc()
		w.log.Info("subscription expired, downgraded to free", "account_id", e.AccountID, "previous_tier", e.Tier)
	}
	return nil
}
