package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/melodix/backend/internal/tier"
)

// Plan is a purchasable subscription plan. StreamingLimit/DownloadLimit, when
// set, override the tier's default ceilings for accounts subscribed through
// this plan.
type Plan struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Tier           tier.Tier `json:"tier"`
	PriceCents     int64     `json:"price_cents"`
	Currency       string    `json:"currency"`
	DurationDays   int       `json:"duration_days"`
	StreamingLimit *int      `json:"streaming_limit,omitempty"`
	DownloadLimit  *int      `json:"download_limit,omitempty"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
}

// Ceilings resolves the balance values this plan grants: plan-specific
// overrides when defined, otherwise the tier defaults.
func (p *Plan) Ceilings() tier.Ceilings {
	c := tier.CeilingsFor(p.Tier)
	if p.StreamingLimit != nil {
		c.Streaming = *p.StreamingLimit
	}
	if p.DownloadLimit != nil {
		c.Download = *p.DownloadLimit
	}
	return c
}
