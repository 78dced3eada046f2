package handler

import (
	"net/http"

	"github.com/edvin/tenancy/internal/api/response"
	"github.com/edvin/tenancy/internal/boundary"
	"github.com/edvin/tenancy/internal/tenancy"
)

// checkTenantAccess verifies that the caller may act on tenantID. Denials go
// through the boundary enforcer so they are logged and counted. Returns false
// and writes an error response if access is denied.
func checkTenantAccess(w http.ResponseWriter, r *http.Request, enforcer *boundary.Enforcer, tenantID string) bool {
	tc := tenancy.FromContext(r.Context())
	if tc == nil {
		response.WriteError(w, http.StatusForbidden, "no tenant context")
		return false
	}
	if tc.HasAccessToTenant(tenantID) {
		return true
	}
	if err := enforcer.Check(tc, boundary.SurfaceHTTP, tenantID); err != nil {
		response.WriteError(w, http.StatusForbidden, err.Error())
		return false
	}
	response.WriteError(w, http.StatusForbidden, "no access to this tenant")
	return false
}
