package adreward

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/melodix/backend/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// PickActive selects one ad uniformly at random among ads that are active and
// whose validity window contains now. Returns ErrNoActiveAds when the
// candidate set is empty.
func (r *Repository) PickActive(ctx context.Context, tx pgx.Tx, now time.Time) (*models.Ad, error) {
	var a models.Ad
	err := tx.QueryRow(ctx, `
		SELECT id, title, active, valid_from, valid_until, reward_quota, total_views, total_clicks, created_at
		FROM ads
		WHERE active AND valid_from <= $1 AND $1 < valid_until
		ORDER BY random()
		LIMIT 1
	`, now).Scan(&a.ID, &a.Title, &a.Active, &a.ValidFrom, &a.ValidUntil, &a.RewardQuota, &a.TotalViews, &a.TotalClicks, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoActiveAds
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateView appends an ad view event inside the given transaction.
func (r *Repository) CreateView(ctx context.Context, tx pgx.Tx, v *models.AdView) error {
	return tx.QueryRow(ctx, `
		INSERT INTO ad_views (id, ad_id, account_id, kind)
		VALUES ($1, $2, $3, $4)
		RETURNING occurred_at
	`, v.ID, v.AdID, v.AccountID, v.Kind).Scan(&v.OccurredAt)
}

// IncrementViews bumps the ad's impression counter inside the given transaction.
func (r *Repository) IncrementViews(ctx context.Context, tx pgx.Tx, adID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE ads SET total_views = total_views + 1, updated_at = now() WHERE id = $1
	`, adID)
	return err
}

// RecordClick appends a click event and bumps total_clicks in its own
// transaction. Click tracking is independent of quota; AccountID may be nil
// for anonymous clicks.
func (r *Repository) RecordClick(ctx context.Context, adID uuid.UUID, accountID *uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	tag, err := tx.Exec(ctx, `
		UPDATE ads SET total_clicks = total_clicks + 1, updated_at = now() WHERE id = $1
	`, adID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAdNotFound
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO ad_views (id, ad_id, account_id, kind)
		VALUES ($1, $2, $3, $4)
	`, uuid.New(), adID, accountID, models.AdViewClick)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}
