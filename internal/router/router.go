package router

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/melodix/backend/internal/adreward"
	"github.com/melodix/backend/internal/entitlement"
	"github.com/melodix/backend/internal/middleware"
	"github.com/melodix/backend/internal/subscription"
)

// New returns an http.Handler serving the API under /api/v1 plus /metrics.
// Every route except the plan listing and ad clicks requires the trusted
// principal headers forwarded by the gateway.
func New(entHandler *entitlement.Handler, adHandler *adreward.Handler, subHandler *subscription.Handler) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"
	principal := middleware.TrustedPrincipal()

	mux.Handle("POST "+base+"/entitlements", principal(http.HandlerFunc(entHandler.Register)))
	mux.Handle("GET "+base+"/entitlements/me", principal(http.HandlerFunc(entHandler.GetMe)))
	mux.Handle("POST "+base+"/quota/consume", principal(http.HandlerFunc(entHandler.Consume)))

	mux.Handle("POST "+base+"/ads/watch", principal(http.HandlerFunc(adHandler.WatchAd)))
	// Click tracking accepts anonymous callers.
	mux.Handle("POST "+base+"/ads/{id}/click", http.HandlerFunc(adHandler.ClickAd))

	mux.Handle("GET "+base+"/subscriptions/plans", http.HandlerFunc(subHandler.ListPlans))
	mux.Handle("POST "+base+"/subscriptions/subscribe", principal(http.HandlerFunc(subHandler.Subscribe)))
	mux.Handle("GET "+base+"/subscriptions/transactions", principal(http.HandlerFunc(subHandler.Transactions)))
	mux.Handle("POST "+base+"/admin/tier", principal(http.HandlerFunc(subHandler.ApplyTier)))

	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}
