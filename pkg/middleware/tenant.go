package middleware

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/talkbase/talkbase/pkg/composables"
)

// WithTenantHeader resolves the tenant from a request header and stores
// it in the context. Requests without the header pass through untouched,
// handlers that need a tenant fail on their own. A malformed id is
// rejected here.
func WithTenantHeader(header string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(header)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			tenantID, err := uuid.Parse(raw)
			if err != nil {
				http.Error(w, "invalid tenant id", http.StatusBadRequest)
				return
			}
			ctx := composables.WithTenantID(r.Context(), tenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
