package adreward

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/melodix/backend/internal/entitlement"
	"github.com/melodix/backend/internal/middleware"
)

type Handler struct {
	svc Service
	log *slog.Logger
}

func NewHandler(svc Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

// WatchAd records an ad impression for the calling account and credits
// streaming quota when the account is an eligible depleted free account.
// The caller can retry consumption immediately with the returned balance.
func (h *Handler) WatchAd(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromCtx(r.Context())
	if p == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	res, err := h.svc.GrantViaAd(r.Context(), p.AccountID)
	switch {
	case errors.Is(err, entitlement.ErrAccountNotFound):
		http.Error(w, `{"error":"account not found"}`, http.StatusNotFound)
		return
	case errors.Is(err, ErrNotEligible):
		http.Error(w, `{"error":"not eligible for ad reward"}`, http.StatusForbidden)
		return
	case errors.Is(err, ErrNoActiveAds):
		http.Error(w, `{"error":"no active ads"}`, http.StatusNotFound)
		return
	case err != nil:
		h.log.Error("ad reward failed", "account_id", p.AccountID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(res)
}

// ClickAd tracks a click on an ad. Anonymous clicks are allowed: the account
// id is recorded only when the gateway forwarded one.
func (h *Handler) ClickAd(w http.ResponseWriter, r *http.Request) {
	adID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid ad id"}`, http.StatusBadRequest)
		return
	}
	// The click route is outside the principal middleware so anonymous
	// clicks work; pick the identity up from the header when present.
	var accountID *uuid.UUID
	if p := middleware.PrincipalFromCtx(r.Context()); p != nil {
		accountID = &p.AccountID
	} else if raw := r.Header.Get("X-Account-ID"); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			accountID = &id
		}
	}
	if err := h.svc.RecordClick(r.Context(), adID, accountID); err != nil {
		if errors.Is(err, ErrAdNotFound) {
			http.Error(w, `{"error":"ad not found"}`, http.StatusNotFound)
			return
		}
		h.log.Error("record click failed", "ad_id", adID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"message": "click recorded"})
}
