package tier

import (
	"fmt"
	"time"
)

// Unlimited is the balance sentinel meaning the tier bypasses metering for
// that resource. It is never decremented.
const Unlimited = -1

// Tier is the subscription class of an account.
type Tier string

const (
	Free        Tier = "free"
	PremiumLite Tier = "premium_lite"
	Premium     Tier = "premium"
)

// Parse returns the Tier for a stored string value.
func Parse(s string) (Tier, error) {
	switch Tier(s) {
	case Free, PremiumLite, Premium:
		return Tier(s), nil
	}
	return "", fmt.Errorf("unknown tier %q", s)
}

// Ceilings are the balance values assigned when a tier is (re)established.
type Ceilings struct {
	Streaming int `json:"streaming_balance"`
	Download  int `json:"download_balance"`
}

// CeilingsFor maps a tier to its quota ceilings. Every tier transition in the
// system (registration, admin bootstrap, paid subscription, expiry downgrade)
// goes through this function.
func CeilingsFor(t Tier) Ceilings {
	switch t {
	case Premium:
		return Ceilings{Streaming: Unlimited, Download: Unlimited}
	case PremiumLite:
		return Ceilings{Streaming: Unlimited, Download: 10}
	case Free:
		fallthrough
	default:
		return Ceilings{Streaming: 5, Download: 0}
	}
}

// IsExpired reports whether a subscription expiry has elapsed. A nil expiry
// never expires.
func IsExpired(expiresAt *time.Time, now time.Time) bool {
	if expiresAt == nil {
		return false
	}
	return !now.Before(*expiresAt)
}
