package models

import (
	"time"

	"github.com/google/uuid"
)

// Payment transaction status enums. Entries are append-only: the only status
// transition ever written is pending -> completed/failed. Corrections are
// expressed as new entries (cancelled, refunded), never by editing history.
const (
	TxStatusPending   = "pending"
	TxStatusCompleted = "completed"
	TxStatusFailed    = "failed"
	TxStatusCancelled = "cancelled"
	TxStatusRefunded  = "refunded"
)

type PaymentTransaction struct {
	ID            uuid.UUID  `json:"id"`
	AccountID     uuid.UUID  `json:"account_id"`
	PlanID        uuid.UUID  `json:"plan_id"`
	AmountCents   int64      `json:"amount_cents"`
	Currency      string     `json:"currency"`
	PaymentMethod string     `json:"payment_method"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
}
