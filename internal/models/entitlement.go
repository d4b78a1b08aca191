package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/melodix/backend/internal/tier"
)

// Entitlement is the per-account quota record. Balances use -1 as the
// unlimited sentinel (see tier.Unlimited); otherwise they are never negative.
// Rows are never hard-deleted: deactivation sets Active=false.
type Entitlement struct {
	AccountID             uuid.UUID  `json:"account_id"`
	Tier                  tier.Tier  `json:"tier"`
	StreamingBalance      int        `json:"streaming_balance"`
	DownloadBalance       int        `json:"download_balance"`
	Active                bool       `json:"active"`
	SubscriptionExpiresAt *time.Time `json:"subscription_expires_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}
