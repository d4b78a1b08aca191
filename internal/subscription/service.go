package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/melodix/backend/internal/metrics"
	"github.com/melodix/backend/internal/models"
	"github.com/melodix/backend/internal/tier"
)

var (
	// ErrInvalidPlan is returned when the plan is missing or inactive.
	ErrInvalidPlan = errors.New("subscription plan not found or inactive")
	// ErrPaymentFailed is returned when settlement is declined or times out.
	// The ledger entry is persisted as failed; the entitlement is untouched.
	ErrPaymentFailed = errors.New("payment failed")
	// ErrEntryNotPending is returned when settling a ledger entry that has
	// already left the pending state. Settled entries are immutable.
	ErrEntryNotPending = errors.New("ledger entry is not pending")
)

// SubscribeResult carries the completed ledger entry and the ceilings the
// account was reset to.
type SubscribeResult struct {
	Transaction *models.PaymentTransaction `json:"transaction"`
	Ceilings    tier.Ceilings              `json:"new_ceilings"`
}

// PlanStore is the plan-catalog interface the service needs.
type PlanStore interface {
	GetPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error)
	ListPlans(ctx context.Context) ([]*models.Plan, error)
}

// LedgerStore is the append-only payment ledger interface.
type LedgerStore interface {
	CreateEntry(ctx context.Context, tx pgx.Tx, t *models.PaymentTransaction) error
	SettleEntry(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error
	ListByAccountID(ctx context.Context, accountID uuid.UUID) ([]*models.PaymentTransaction, error)
}

// EntitlementStore is the minimal entitlement interface for tier rewrites.
type EntitlementStore interface {
	InTx(ctx context.Context, fn func(pgx.Tx) error) error
	SetTier(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, t tier.Tier, c tier.Ceilings, expiresAt *time.Time) error
}

type Service interface {
	Subscribe(ctx context.Context, accountID, planID uuid.UUID, paymentMethod string) (SubscribeResult, error)
	ApplyTier(ctx context.Context, accountID uuid.UUID, t tier.Tier) (tier.Ceilings, error)
	ListPlans(ctx context.Context) ([]*models.Plan, error)
	Transactions(ctx context.Context, accountID uuid.UUID) ([]*models.PaymentTransaction, error)
}

type service struct {
	plans         PlanStore
	ledger        LedgerStore
	entitlements  EntitlementStore
	settler       Settler
	settleTimeout time.Duration
	now           func() time.Time
}

func NewService(plans PlanStore, ledger LedgerStore, entitlements EntitlementStore, settler Settler, settleTimeout time.Duration) Service {
	if settleTimeout <= 0 {
		settleTimeout = 30 * time.Second
	}
	return &service{
		plans:         plans,
		ledger:        ledger,
		entitlements:  entitlements,
		settler:       settler,
		settleTimeout: settleTimeout,
		now:           time.Now,
	}
}

var _ Service = (*service)(nil)

// Subscribe processes a tier change as one atomic unit: a ledger entry and
// the entitlement rewrite commit together or not at all. Settlement runs
// under a bounded timeout; a declined or timed-out charge commits only the
// failed entry and leaves the entitlement untouched. A crash before commit
// persists nothing, so a retry with a fresh entry id is always safe.
func (s *service) Subscribe(ctx context.Context, accountID, planID uuid.UUID, paymentMethod string) (SubscribeResult, error) {
	plan, err := s.plans.GetPlan(ctx, planID)
	if err != nil {
		return SubscribeResult{}, err
	}
	if !plan.Active {
		return SubscribeResult{}, ErrInvalidPlan
	}

	entry := &models.PaymentTransaction{
		ID:            uuid.New(),
		AccountID:     accountID,
		PlanID:        plan.ID,
		AmountCents:   plan.PriceCents,
		Currency:      plan.Currency,
		PaymentMethod: paymentMethod,
		Status:        models.TxStatusPending,
	}

	var declined bool
	ceilings := plan.Ceilings()
	err = s.entitlements.InTx(ctx, func(tx pgx.Tx) error {
		if err := s.ledger.CreateEntry(ctx, tx, entry); err != nil {
			return err
		}

		settleCtx, cancel := context.WithTimeout(ctx, s.settleTimeout)
		settleErr := s.settler.Settle(settleCtx, entry)
		cancel()

		if settleErr != nil {
			// Commit the failed entry so the attempt is on record, but
			// leave the entitlement row alone.
			declined = true
			entry.Status = models.TxStatusFailed
			return s.ledger.SettleEntry(ctx, tx, entry.ID, models.TxStatusFailed)
		}

		entry.Status = models.TxStatusCompleted
		if err := s.ledger.SettleEntry(ctx, tx, entry.ID, models.TxStatusCompleted); err != nil {
			return err
		}

		expiresAt := s.now().Add(time.Duration(plan.DurationDays) * 24 * time.Hour)
		return s.entitlements.SetTier(ctx, tx, accountID, plan.Tier, ceilings, &expiresAt)
	})
	if err != nil {
		return SubscribeResult{}, err
	}
	if declined {
		metrics.Subscriptions.WithLabelValues(models.TxStatusFailed).Inc()
		return SubscribeResult{Transaction: entry}, ErrPaymentFailed
	}
	metrics.Subscriptions.WithLabelValues(models.TxStatusCompleted).Inc()
	return SubscribeResult{Transaction: entry, Ceilings: ceilings}, nil
}

// ApplyTier rewrites an account's tier and ceilings without payment: the
// admin bootstrap path (operator accounts created directly in premium) and
// the expiry downgrade back to free. Both still go through the tier policy.
func (s *service) ApplyTier(ctx context.Context, accountID uuid.UUID, t tier.Tier) (tier.Ceilings, error) {
	c := tier.CeilingsFor(t)
	err := s.entitlements.InTx(ctx, func(tx pgx.Tx) error {
		return s.entitlements.SetTier(ctx, tx, accountID, t, c, nil)
	})
	if err != nil {
		return tier.Ceilings{}, err
	}
	return c, nil
}

func (s *service) ListPlans(ctx context.Context) ([]*models.Plan, error) {
	return s.plans.ListPlans(ctx)
}

func (s *service) Transactions(ctx context.Context, accountID uuid.UUID) ([]*models.PaymentTransaction, error) {
	return s.ledger.ListByAccountID(ctx, accountID)
}
