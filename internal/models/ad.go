package models

import (
	"time"

	"github.com/google/uuid"
)

// Ad view kind enums.
const (
	AdViewImpression   = "impression"
	AdViewClick        = "click"
	AdViewCompleteView = "complete_view"
)

// Ad is an advertisement unit. The catalog that creates ads is external;
// this core reads candidates and writes the view/click counters.
type Ad struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Active      bool      `json:"active"`
	ValidFrom   time.Time `json:"valid_from"`
	ValidUntil  time.Time `json:"valid_until"`
	RewardQuota int       `json:"reward_quota"`
	TotalViews  int       `json:"total_views"`
	TotalClicks int       `json:"total_clicks"`
	CreatedAt   time.Time `json:"created_at"`
}

// AdView is an append-only record of a single ad interaction. AccountID is
// nil for anonymous click tracking.
type AdView struct {
	ID         uuid.UUID  `json:"id"`
	AdID       uuid.UUID  `json:"ad_id"`
	AccountID  *uuid.UUID `json:"account_id,omitempty"`
	Kind       string     `json:"kind"`
	OccurredAt time.Time  `json:"occurred_at"`
}
