package subscription

import (
	"context"
	"errors"

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

func (r *Repository) GetPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	var p models.Plan
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, tier, price_cents, currency, duration_days, streaming_limit, download_limit, active, created_at
		FROM subscription_plans WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Tier, &p.PriceCents, &p.Currency, &p.DurationDays, &p.StreamingLimit, &p.DownloadLimit, &p.Active, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInvalidPlan
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repository) ListPlans(ctx context.Context) ([]*models.Plan, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, tier, price_cents, currency, duration_days, streaming_limit, download_limit, active, created_at
		FROM subscription_plans WHERE active ORDER BY price_cents ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Plan
	for rows.Next() {
		var p models.Plan
		if err := rows.Scan(&p.ID, &p.Name, &p.Tier, &p.PriceCents, &p.Currency, &p.DurationDays, &p.StreamingLimit, &p.DownloadLimit, &p.Active, &p.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &p)
	}
	return list, rows.Err()
}

// CreateEntry inserts a ledger entry inside the given transaction.
func (r *Repository) CreateEntry(ctx context.Context, tx pgx.Tx, t *models.PaymentTransaction) error {
	return tx.QueryRow(ctx, `
		INSERT INTO payment_transactions (id, account_id, plan_id, amount_cents, currency, payment_method, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, t.ID, t.AccountID, t.PlanID, t.AmountCents, t.Currency, t.PaymentMethod, t.Status).Scan(&t.CreatedAt)
}

// SettleEntry applies the single pending -> completed/failed transition and
// stamps processed_at. The WHERE clause enforces ledger immutability: an
// entry that already left pending is never rewritten.
func (r *Repository) SettleEntry(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE payment_transactions SET status = $2, processed_at = now()
		WHERE id = $1 AND status = 'pending'
	`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotPending
	}
	return nil
}

func (r *Repository) ListByAccountID(ctx context.Context, accountID uuid.UUID) ([]*models.PaymentTransaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, account_id, plan_id, amount_cents, currency, payment_method, status, created_at, processed_at
		FROM payment_transactions WHERE account_id = $1 ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.PaymentTransaction
	for rows.Next() {
		var t models.PaymentTransaction
		if err := rows.Scan(&t.ID, &t.AccountID, &t.PlanID, &t.AmountCents, &t.Currency, &t.PaymentMethod, &t.Status, &t.CreatedAt, &t.ProcessedAt); err != nil {
			return nil, err
		}
		list = append(list, &t)
	}
	return list, rows.Err()
}
