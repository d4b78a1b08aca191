package subscription

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/melodix/backend/internal/entitlement"
	"github.com/melodix/backend/internal/middleware"
	"github.com/melodix/backend/internal/tier"
)

type SubscribeRequest struct {
	PlanID        string `json:"plan_id"`
	PaymentMethod string `json:"payment_method"`
}

type ApplyTierRequest struct {
	AccountID string `json:"account_id"`
	Tier      string `json:"tier"`
}

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

func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.svc.ListPlans(r.Context())
	if err != nil {
		h.log.Error("list plans failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(plans)
}

func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromCtx(r.Context())
	if p == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	planID, err := uuid.Parse(req.PlanID)
	if err != nil || req.PaymentMethod == "" {
		http.Error(w, `{"error":"plan_id and payment_method are required"}`, http.StatusBadRequest)
		return
	}

	res, err := h.svc.Subscribe(r.Context(), p.AccountID, planID, req.PaymentMethod)
	switch {
	case errors.Is(err, ErrInvalidPlan):
		http.Error(w, `{"error":"subscription plan not found or inactive"}`, http.StatusNotFound)
		return
	case errors.Is(err, ErrPaymentFailed):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":       "payment failed",
			"transaction": res.Transaction,
		})
		return
	case errors.Is(err, entitlement.ErrAccountNotFound):
		http.Error(w, `{"error":"account not found"}`, http.StatusNotFound)
		return
	case err != nil:
		h.log.Error("subscribe failed", "account_id", p.AccountID, "plan_id", planID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(res)
}

func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromCtx(r.Context())
	if p == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	list, err := h.svc.Transactions(r.Context(), p.AccountID)
	if err != nil {
		h.log.Error("list transactions failed", "account_id", p.AccountID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}

// ApplyTier is the admin bootstrap path: rewrite an account's tier without a
// payment. Operator accounts may be created directly in premium this way.
func (h *Handler) ApplyTier(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromCtx(r.Context())
	if p == nil || p.Role != "admin" {
		http.Error(w, `{"error":"admin role required"}`, http.StatusForbidden)
		return
	}
	var req ApplyTierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		http.Error(w, `{"error":"invalid account_id"}`, http.StatusBadRequest)
		return
	}
	t, err := tier.Parse(req.Tier)
	if err != nil {
		http.Error(w, `{"error":"invalid tier"}`, http.StatusBadRequest)
		return
	}

	c, err := h.svc.ApplyTier(r.Context(), accountID, t)
	if err != nil {
		if errors.Is(err, entitlement.ErrAccountNotFound) {
			http.Error(w, `{"error":"account not found"}`, http.StatusNotFound)
			return
		}
		h.log.Error("apply tier failed", "account_id", accountID, "tier", t, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(c)
}
