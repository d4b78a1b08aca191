package entitlement

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/melodix/backend/internal/middleware"
)

type ConsumeRequest struct {
	Resource string `json:"resource"`
}

type ConsumeResponse struct {
	Allowed   bool   `json:"allowed"`
	Remaining int    `json:"remaining"`
	Error     string `json:"error,omitempty"`
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

// Register creates the entitlement row for the calling account with free-tier
// ceilings. Called once at account registration.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromCtx(r.Context())
	if p == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	e, err := h.svc.Register(r.Context(), p.AccountID)
	if err != nil {
		h.log.Error("register entitlement failed", "account_id", p.AccountID, "error", err)
		http.Error(w, `{"error":"registration failed"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(e)
}

func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromCtx(r.Context())
	if p == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	e, err := h.svc.Get(r.Context(), p.AccountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			http.Error(w, `{"error":"account not found"}`, http.StatusNotFound)
			return
		}
		h.log.Error("get entitlement failed", "account_id", p.AccountID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(e)
}

// Consume gatekeeps one stream or download action for the calling account.
// The catalog controller must not serve the asset unless allowed is true.
func (h *Handler) Consume(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromCtx(r.Context())
	if p == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req ConsumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	var resource Resource
	switch req.Resource {
	case "streaming":
		resource = Streaming
	case "download":
		resource = Download
	default:
		http.Error(w, `{"error":"resource must be streaming or download"}`, http.StatusBadRequest)
		return
	}

	res, err := h.svc.Consume(r.Context(), p.AccountID, resource)
	w.Header().Set("Content-Type", "application/json")
	switch {
	case errors.Is(err, ErrAccountNotFound):
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(ConsumeResponse{Error: "account not found"})
	case errors.Is(err, ErrAccountInactive):
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(ConsumeResponse{Error: "account inactive"})
	case errors.Is(err, ErrQuotaExhausted):
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(ConsumeResponse{Allowed: false, Remaining: 0, Error: "quota exhausted"})
	case err != nil:
		h.log.Error("consume failed", "account_id", p.AccountID, "resource", resource, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(ConsumeResponse{Error: "internal error"})
	default:
		_ = json.NewEncoder(w).Encode(ConsumeResponse{Allowed: res.Allowed, Remaining: res.Remaining})
	}
}
