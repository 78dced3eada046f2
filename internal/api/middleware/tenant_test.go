package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/tenancy/internal/model"
	"github.com/edvin/tenancy/internal/tenancy"
)

const (
	acmeID   = "550e8400-e29b-41d4-a716-446655440000"
	globexID = "6ba7b810-9dad-11d1-80b4-00c04fd430c8"
	globalID = "00000000-0000-0000-0000-000000000001"
)

type fakeTenants map[string]*model.Tenant

func (f fakeTenants) GetByID(_ context.Context, id string) (*model.Tenant, error) {
	if t, ok := f[id]; ok {
		return t, nil
	}
	return nil, model.ErrNotFound
}

func (f fakeTenants) GetByName(_ context.Context, name string) (*model.Tenant, error) {
	for _, t := range f {
		if t.Name == name {
			return t, nil
		}
	}
	return nil, model.ErrNotFound
}

func testTenants() fakeTenants {
	return fakeTenants{
		acmeID:   {ID: acmeID, Name: "acme", IsActive: true},
		globexID: {ID: globexID, Name: "globex", IsActive: false},
	}
}

func testTenantOptions() TenantOptions {
	return TenantOptions{
		Tenancy: tenancy.Options{
			MultiTenancyEnabled:     true,
			GlobalTenantID:          globalID,
			ValidateTenantExistence: true,
			TenantIDClaim:           "tenant_id",
			TenantNameClaim:         "tenant_name",
			UserIDClaim:             "sub",
			RolesClaim:              "roles",
		},
		Header:            "X-Tenant-ID",
		AllowHeaderSwitch: true,
	}
}

// serveTenant runs the middleware and returns the response and the tenant
// context seen by the next handler.
func serveTenant(opts TenantOptions, claims map[string]any, mutate func(*http.Request)) (*httptest.ResponseRecorder, *tenancy.Context) {
	var seen *tenancy.Context
	handler := TenantContext(opts, testTenants(), zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = tenancy.FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/api/v1/tenants", nil)
	if claims != nil {
		req = req.WithContext(WithClaims(req.Context(), claims))
	}
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, seen
}

func TestTenantContext_FromClaims(t *testing.T) {
	rec, tc := serveTenant(testTenantOptions(), map[string]any{"sub": "u1", "tenant_id": acmeID}, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, tc)
	assert.Equal(t, acmeID, tc.CurrentTenantID())
	assert.Equal(t, "u1", tc.CurrentUser().UserID)
	assert.False(t, tc.IsRoot())
}

func TestTenantContext_FromNameClaim(t *testing.T) {
	rec, tc := serveTenant(testTenantOptions(), map[string]any{"sub": "u1", "tenant_name": "ACME"}, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, tc)
	assert.Equal(t, acmeID, tc.CurrentTenantID())
}

func TestTenantContext_InactiveTenantRejected(t *testing.T) {
	rec, tc := serveTenant(testTenantOptions(), map[string]any{"sub": "u1", "tenant_id": globexID}, nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "tenant is inactive")
	assert.Nil(t, tc)
}

func TestTenantContext_UnknownTenantRejected(t *testing.T) {
	rec, _ := serveTenant(testTenantOptions(), map[string]any{"sub": "u1", "tenant_id": "9b2d6f0e-1111-4a2b-8c3d-0123456789ab"}, nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "tenant does not exist")
}

func TestTenantContext_RootHeaderSwitch(t *testing.T) {
	claims := map[string]any{"sub": "root-1", "roles": []any{"root"}}
	rec, tc := serveTenant(testTenantOptions(), claims, func(r *http.Request) {
		r.Header.Set("X-Tenant-ID", acmeID)
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, tc)
	assert.True(t, tc.IsRoot())
	assert.Equal(t, acmeID, tc.CurrentTenantID())
}

func TestTenantContext_HeaderSwitchDenied(t *testing.T) {
	tests := []struct {
		name   string
		opts   func(*TenantOptions)
		claims map[string]any
	}{
		{
			name:   "non-root caller",
			opts:   func(*TenantOptions) {},
			claims: map[string]any{"sub": "u1", "tenant_id": acmeID},
		},
		{
			name:   "switch disabled",
			opts:   func(o *TenantOptions) { o.AllowHeaderSwitch = false },
			claims: map[string]any{"sub": "root-1", "roles": "root"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testTenantOptions()
			tt.opts(&opts)
			rec, tc := serveTenant(opts, tt.claims, func(r *http.Request) {
				r.Header.Set("X-Tenant-ID", globexID)
			})
			assert.Equal(t, http.StatusForbidden, rec.Code)
			assert.Nil(t, tc)
		})
	}
}

func TestTenantContext_SameTenantHeaderAllowed(t *testing.T) {
	rec, tc := serveTenant(testTenantOptions(), map[string]any{"sub": "u1", "tenant_id": acmeID}, func(r *http.Request) {
		r.Header.Set("X-Tenant-ID", acmeID)
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, tc)
	assert.Equal(t, acmeID, tc.CurrentTenantID())
}

func TestTenantContext_RequireExplicit(t *testing.T) {
	opts := testTenantOptions()
	opts.RequireExplicit = true

	rec, _ := serveTenant(opts, map[string]any{"sub": "u1"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, tc := serveTenant(opts, map[string]any{"sub": "root-1", "roles": "root"}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, tc)
	assert.Empty(t, tc.CurrentTenantID())
}

func TestTenantContext_SingleTenantDefaultsToGlobal(t *testing.T) {
	opts := testTenantOptions()
	opts.Tenancy.MultiTenancyEnabled = false
	opts.RequireExplicit = true

	rec, tc := serveTenant(opts, nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, tc)
	assert.Equal(t, globalID, tc.CurrentTenantID())
}

func TestRequireRoot(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	RequireRoot()(next).ServeHTTP(rec, httptest.NewRequest("POST", "/", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	chain := TenantContext(testTenantOptions(), testTenants(), zerolog.Nop())(RequireRoot()(next))

	req := httptest.NewRequest("POST", "/", nil)
	req = req.WithContext(WithClaims(req.Context(), map[string]any{"sub": "u1", "tenant_id": acmeID}))
	rec = httptest.NewRecorder()
	chain.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest("POST", "/", nil)
	req = req.WithContext(WithClaims(req.Context(), map[string]any{"sub": "admin-1", "roles": []any{"Admin"}}))
	rec = httptest.NewRecorder()
	chain.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
