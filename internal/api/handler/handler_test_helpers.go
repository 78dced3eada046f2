package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/edvin/tenancy/internal/tenancy"
)

// newRequest creates a new HTTP request with an optional JSON body.
func newRequest(method, target string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	r := httptest.NewRequest(method, target, &buf)
	r.Header.Set("Content-Type", "application/json")
	return r
}

// newRequestRaw creates a new HTTP request with a raw string body.
func newRequestRaw(method, target, body string) *http.Request {
	r := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

// withChiURLParam adds a chi URL parameter to the request context.
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	return withChiURLParams(r, map[string]string{key: value})
}

// withChiURLParams adds multiple chi URL parameters to the request context.
func withChiURLParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// decodeErrorResponse parses the JSON error response body into a map.
func decodeErrorResponse(rec *httptest.ResponseRecorder) map[string]string {
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	return body
}

var testTenancyOptions = tenancy.Options{
	MultiTenancyEnabled: true,
	GlobalTenantID:      globalTenantID,
	TenantIDClaim:       "tenant_id",
	UserIDClaim:         "sub",
	RolesClaim:          "roles",
}

// withCaller attaches a tenant context built from claims, as the
// TenantContext middleware would.
func withCaller(r *http.Request, claims map[string]any) *http.Request {
	tc := tenancy.New(testTenancyOptions, nil, zerolog.Nop())
	_ = tc.SetCurrentUser(r.Context(), tenancy.IdentityFromClaims(claims, testTenancyOptions))
	return r.WithContext(tenancy.WithContext(r.Context(), tc))
}

// withRoot attaches a root caller with no tenant.
func withRoot(r *http.Request) *http.Request {
	return withCaller(r, map[string]any{"sub": "root-user", "roles": []any{"root"}})
}

// withTenantUser attaches a non-root caller bound to tenantID.
func withTenantUser(r *http.Request, tenantID string) *http.Request {
	return withCaller(r, map[string]any{"sub": "tenant-user", "tenant_id": tenantID})
}

const (
	tenantID       = "550e8400-e29b-41d4-a716-446655440000"
	otherTenantID  = "6ba7b810-9dad-11d1-80b4-00c04fd430c8"
	globalTenantID = "00000000-0000-0000-0000-000000000001"
)
