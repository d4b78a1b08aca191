package entitlement

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/melodix/backend/internal/models"
	"github.com/melodix/backend/internal/tier"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Begin starts a transaction on the underlying pool.
func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// InTx runs fn inside a transaction, committing on nil error and rolling
// back otherwise. Services use it as their atomic unit of work; test mocks
// satisfy it by invoking fn with a nil tx.
func (r *Repository) InTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) Create(ctx context.Context, e *models.Entitlement) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO account_entitlements (account_id, tier, streaming_balance, download_balance, active, subscription_expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, e.AccountID, e.Tier, e.StreamingBalance, e.DownloadBalance, e.Active, e.SubscriptionExpiresAt).Scan(&e.CreatedAt, &e.UpdatedAt)
}

func (r *Repository) GetByAccountID(ctx context.Context, accountID uuid.UUID) (*models.Entitlement, error) {
	return scanEntitlement(r.pool.QueryRow(ctx, `
		SELECT account_id, tier, streaming_balance, download_balance, active, subscription_expires_at, created_at, updated_at
		FROM account_entitlements WHERE account_id = $1
	`, accountID))
}

// GetForUpdate locks the entitlement row. Call within a transaction.
func (r *Repository) GetForUpdate(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (*models.Entitlement, error) {
	return scanEntitlement(tx.QueryRow(ctx, `
		SELECT account_id, tier, streaming_balance, download_balance, active, subscription_expires_at, created_at, updated_at
		FROM account_entitlements WHERE account_id = $1 FOR UPDATE
	`, accountID))
}

// ConsumeStreaming atomically decrements streaming_balance if it is positive.
// Returns the remaining balance, or ErrQuotaExhausted when the balance was
// already zero. The condition is evaluated by the database so concurrent
// callers can never drive the balance negative.
func (r *Repository) ConsumeStreaming(ctx context.Context, accountID uuid.UUID) (int, error) {
	return r.consume(ctx, accountID, "streaming_balance")
}

// ConsumeDownload is the download_balance counterpart of ConsumeStreaming.
func (r *Repository) ConsumeDownload(ctx context.Context, accountID uuid.UUID) (int, error) {
	return r.consume(ctx, accountID, "download_balance")
}

func (r *Repository) consume(ctx context.Context, accountID uuid.UUID, column string) (int, error) {
	var remaining int
	err := r.pool.QueryRow(ctx, `
		UPDATE account_entitlements SET `+column+` = `+column+` - 1, updated_at = now()
		WHERE account_id = $1 AND `+column+` > 0
		RETURNING `+column+`
	`, accountID).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrQuotaExhausted
	}
	return remaining, err
}

// AddStreaming unconditionally credits streaming_balance and returns the new
// balance. Call within the transaction that records the reward.
func (r *Repository) AddStreaming(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int) (newBalance int, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE account_entitlements SET streaming_balance = streaming_balance + $1, updated_at = now()
		WHERE account_id = $2
		RETURNING streaming_balance
	`, amount, accountID).Scan(&newBalance)
	return newBalance, err
}

// SetTier overwrites tier, both balances, and the subscription expiry as one
// statement. Call within the transaction that records the ledger entry.
func (r *Repository) SetTier(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, t tier.Tier, c tier.Ceilings, expiresAt *time.Time) error {
	tag, err := tx.Exec(ctx, `
		UPDATE account_entitlements
		SET tier = $2, streaming_balance = $3, download_balance = $4, subscription_expires_at = $5, updated_at = now()
		WHERE account_id = $1
	`, accountID, t, c.Streaming, c.Download, expiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// Deactivate disables an account's entitlement. The row is kept.
func (r *Repository) Deactivate(ctx context.Context, accountID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE account_entitlements SET active = FALSE, updated_at = now() WHERE account_id = $1
	`, accountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// ListExpired returns active non-free entitlements whose expiry has elapsed,
// oldest first. Used by the reconciliation sweep.
func (r *Repository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.Entitlement, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT account_id, tier, streaming_balance, download_balance, active, subscription_expires_at, created_at, updated_at
		FROM account_entitlements
		WHERE active AND tier <> 'free' AND subscription_expires_at IS NOT NULL AND subscription_expires_at <= $1
		ORDER BY subscription_expires_at ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Entitlement
	for rows.Next() {
		var e models.Entitlement
		if err := rows.Scan(&e.AccountID, &e.Tier, &e.StreamingBalance, &e.DownloadBalance, &e.Active, &e.SubscriptionExpiresAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}

func scanEntitlement(row pgx.Row) (*models.Entitlement, error) {
	var e models.Entitlement
	err := row.Scan(&e.AccountID, &e.Tier, &e.StreamingBalance, &e.DownloadBalance, &e.Active, &e.SubscriptionExpiresAt, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}
