package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const ctxPrincipalKey contextKey = "principal"

// Principal is the already-authenticated caller handed to every operation.
// Authentication itself happens upstream (API gateway); this core trusts the
// identity headers it forwards.
type Principal struct {
	AccountID uuid.UUID
	Role      string
}

// TrustedPrincipal extracts the caller identity from X-Account-ID and
// X-Account-Role and stores it in request context. Requests without a valid
// account id are rejected.
func TrustedPrincipal() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get("X-Account-ID")
			if raw == "" {
				http.Error(w, `{"error":"missing X-Account-ID header"}`, http.StatusUnauthorized)
				return
			}
			id, err := uuid.Parse(raw)
			if err != nil {
				http.Error(w, `{"error":"malformed X-Account-ID header"}`, http.StatusUnauthorized)
				return
			}
			p := &Principal{AccountID: id, Role: r.Header.Get("X-Account-Role")}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// PrincipalFromCtx returns the caller identity or nil.
func PrincipalFromCtx(ctx context.Context) *Principal {
	p, _ := ctx.Value(ctxPrincipalKey).(*Principal)
	return p
}

// WithPrincipal returns a context carrying the given principal.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxPrincipalKey, p)
}
