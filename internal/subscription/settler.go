package subscription

import (
	"context"
	"fmt"

	"github.com/melodix/backend/internal/models"
)

// Settler settles a pending ledger entry with an external payment
// collaborator. A nil error means the charge went through; any error (or a
// context timeout) means the entry must be marked failed.
type Settler interface {
	Settle(ctx context.Context, t *models.PaymentTransaction) error
}

// ManualSettler approves entries without contacting a payment provider. Used
// for manually reconciled payments and local development.
type ManualSettler struct{}

func (ManualSettler) Settle(ctx context.Context, t *models.PaymentTransaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.PaymentMethod == "" {
		return fmt.Errorf("missing payment method")
	}
	return nil
}

var _ Settler = ManualSettler{}
