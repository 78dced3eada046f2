package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/edvin/tenancy/internal/api/response"
	"github.com/edvin/tenancy/internal/config"
	"github.com/edvin/tenancy/internal/tenancy"
)

// TenantOptions controls how the tenant of a request is established.
type TenantOptions struct {
	Tenancy           tenancy.Options
	Header            string
	AllowHeaderSwitch bool
	RequireExplicit   bool
}

func TenantOptionsFromConfig(cfg *config.Config) TenantOptions {
	return TenantOptions{
		Tenancy:           tenancy.OptionsFromConfig(cfg),
		Header:            cfg.TenantHeader,
		AllowHeaderSwitch: cfg.AllowTenantHeaderSwitch,
		RequireExplicit:   cfg.RequireExplicitTenant,
	}
}

// TenantContext returns a middleware that builds the tenant context of each
// request from the token claims and, for root callers, the tenant header.
// Requests whose tenant fails validation are rejected with 403.
func TenantContext(opts TenantOptions, tenants tenancy.TenantLookup, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			tc := tenancy.New(opts.Tenancy, tenants, logger)

			if claims := GetClaims(ctx); claims != nil {
				if err := tc.SetCurrentUser(ctx, tenancy.IdentityFromClaims(claims, opts.Tenancy)); err != nil {
					logger.Error().Err(err).Msg("resolve tenant from token failed")
					response.WriteError(w, http.StatusInternalServerError, "failed to resolve tenant")
					return
				}
			}

			if requested := requestedTenant(r, opts.Header); requested != "" && requested != tc.CurrentTenantID() {
				if !opts.AllowHeaderSwitch || !tc.IsRoot() {
					response.WriteError(w, http.StatusForbidden, "tenant switch not permitted")
					return
				}
				tc.SetCurrentTenant(ctx, requested)
			}

			if opts.RequireExplicit && tc.IsMultiTenancyEnabled() && tc.CurrentTenantID() == "" && !tc.IsRoot() {
				response.WriteError(w, http.StatusBadRequest, "tenant is required")
				return
			}

			res, err := tc.AwaitValidated(ctx)
			if err != nil {
				response.WriteError(w, http.StatusServiceUnavailable, "tenant validation did not complete")
				return
			}
			if !res.Valid {
				response.WriteError(w, http.StatusForbidden, res.Reason)
				return
			}

			next.ServeHTTP(w, r.WithContext(tenancy.WithContext(ctx, tc)))
		})
	}
}

func requestedTenant(r *http.Request, header string) string {
	if header != "" {
		if v := strings.TrimSpace(r.Header.Get(header)); v != "" {
			return v
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("tenant_id"))
}
