package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "melodix"

// Quota metrics
var (
	QuotaConsume = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_consume_total",
			Help:      "Quota consumption attempts by resource and outcome",
		},
		[]string{"resource", "outcome"},
	)
)

// Ad reward metrics
var (
	AdRewardsGranted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ad_rewards_granted_total",
			Help:      "Quota grants issued in exchange for ad impressions",
		},
	)

	AdClicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ad_clicks_total",
			Help:      "Ad click events recorded",
		},
	)
)

// Subscription metrics
var (
	Subscriptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscriptions_total",
			Help:      "Subscription attempts by final transaction status",
		},
		[]string{"status"},
	)

	ExpiryDowngrades = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expiry_downgrades_total",
			Help:      "Accounts downgraded to free by the expiry sweep",
		},
	)
)
