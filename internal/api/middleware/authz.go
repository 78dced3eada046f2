package middleware

import (
	"net/http"

	"github.com/edvin/tenancy/internal/api/response"
	"github.com/edvin/tenancy/internal/tenancy"
)

// RequireRoot returns middleware that only admits callers holding the root
// or admin role. It must run after TenantContext.
func RequireRoot() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tc := tenancy.FromContext(r.Context())
			if tc == nil || !tc.IsRoot() {
				response.WriteError(w, http.StatusForbidden, "root access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
