package adreward

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
	// ErrNotEligible is returned when the account is inactive, not on the free
	// tier, or still holds streaming balance. Only a fully depleted free
	// account can be rewarded.
	ErrNotEligible = errors.New("account not eligible for ad reward")
	// ErrNoActiveAds is returned when no ad is active within its validity window.
	ErrNoActiveAds = errors.New("no active ads")
	// ErrAdNotFound is returned by click tracking for an unknown ad.
	ErrAdNotFound = errors.New("ad not found")
)

// GrantResult reports a successful reward: which ad was shown, how much quota
// it credited, and the resulting streaming balance.
type GrantResult struct {
	AdID       uuid.UUID `json:"ad_id"`
	Credited   int       `json:"credited"`
	NewBalance int       `json:"new_balance"`
}

// EntitlementStore is the minimal entitlement interface the reward service needs.
type EntitlementStore interface {
	InTx(ctx context.Context, fn func(pgx.Tx) error) error
	GetForUpdate(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (*models.Entitlement, error)
	AddStreaming(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int) (int, error)
}

// AdStore is the minimal ad-catalog interface the reward service needs.
type AdStore interface {
	PickActive(ctx context.Context, tx pgx.Tx, now time.Time) (*models.Ad, error)
	CreateView(ctx context.Context, tx pgx.Tx, v *models.AdView) error
	IncrementViews(ctx context.Context, tx pgx.Tx, adID uuid.UUID) error
	RecordClick(ctx context.Context, adID uuid.UUID, accountID *uuid.UUID) error
}

type Service interface {
	GrantViaAd(ctx context.Context, accountID uuid.UUID) (GrantResult, error)
	RecordClick(ctx context.Context, adID uuid.UUID, accountID *uuid.UUID) error
}

type service struct {
	entitlements EntitlementStore
	ads          AdStore
	now          func() time.Time
}

func NewService(entitlements EntitlementStore, ads AdStore) Service {
	return &service{entitlements: entitlements, ads: ads, now: time.Now}
}

var _ Service = (*service)(nil)

// GrantViaAd credits streaming quota to a depleted free-tier account in
// exchange for recording an ad impression. The impression event, the ad view
// counter, and the balance credit commit as one unit; on any failure the
// entitlement row is unchanged.
func (s *service) GrantViaAd(ctx context.Context, accountID uuid.UUID) (GrantResult, error) {
	var res GrantResult
	err := s.entitlements.InTx(ctx, func(tx pgx.Tx) error {
		e, err := s.entitlements.GetForUpdate(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if !e.Active || e.Tier != tier.Free || e.StreamingBalance != 0 {
			return ErrNotEligible
		}
		ad, err := s.ads.PickActive(ctx, tx, s.now())
		if err != nil {
			return err
		}
		if err := s.ads.CreateView(ctx, tx, &models.AdView{
			ID:        uuid.New(),
			AdID:      ad.ID,
			AccountID: &accountID,
			Kind:      models.AdViewImpression,
		}); err != nil {
			return err
		}
		if err := s.ads.IncrementViews(ctx, tx, ad.ID); err != nil {
			return err
		}
		newBalance, err := s.entitlements.AddStreaming(ctx, tx, accountID, ad.RewardQuota)
		if err != nil {
			return err
		}
		res = GrantResult{AdID: ad.ID, Credited: ad.RewardQuota, NewBalance: newBalance}
		return nil
	})
	if err != nil {
		return GrantResult{}, err
	}
	metrics.AdRewardsGranted.Inc()
	return res, nil
}

// RecordClick tracks a click on an ad. It touches total_clicks only and never
// affects quota.
func (s *service) RecordClick(ctx context.Context, adID uuid.UUID, accountID *uuid.UUID) error {
	if err := s.ads.RecordClick(ctx, adID, accountID); err != nil {
		return err
	}
	metrics.AdClicks.Inc()
	return nil
}
