package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/edvin/tenancy/internal/api/request"
	"github.com/edvin/tenancy/internal/api/response"
	"github.com/edvin/tenancy/internal/boundary"
	"github.com/edvin/tenancy/internal/core"
	"github.com/edvin/tenancy/internal/model"
)

// TenantLifecycle runs the administrative tenant operations.
type TenantLifecycle interface {
	Create(ctx context.Context, req core.CreateTenantRequest) model.TenantResult
	Deactivate(ctx context.Context, tenantID, reason string) model.TenantResult
	Reactivate(ctx context.Context, tenantID string) model.TenantResult
	SaveConnection(ctx context.Context, tenantID string, kind model.ConnectionKind, in core.ConnectionInput) (*model.ConnectionRecord, error)
}

// TenantStore reads the tenant registry.
type TenantStore interface {
	GetByID(ctx context.Context, id string) (*model.Tenant, error)
	List(ctx context.Context, params core.ListParams) ([]model.Tenant, bool, error)
}

// ConnectionManager refreshes and probes a tenant's resolved connections.
type ConnectionManager interface {
	RefreshConnections(ctx context.Context, tenantID string)
	TestConnection(ctx context.Context, tenantID string) map[model.ConnectionKind]bool
}

type Tenant struct {
	lifecycle   TenantLifecycle
	tenants     TenantStore
	connections ConnectionManager
	enforcer    *boundary.Enforcer
}

func NewTenant(lifecycle TenantLifecycle, tenants TenantStore, connections ConnectionManager, enforcer *boundary.Enforcer) *Tenant {
	return &Tenant{
		lifecycle:   lifecycle,
		tenants:     tenants,
		connections: connections,
		enforcer:    enforcer,
	}
}

// ConnectionTestResponse is the body of GET /tenants/{id}/connections/test.
type ConnectionTestResponse struct {
	TenantID string                        `json:"tenant_id"`
	Results  map[model.ConnectionKind]bool `json:"results"`
	Healthy  bool                          `json:"healthy"`
}

// List returns a page of tenants.
func (h *Tenant) List(w http.ResponseWriter, r *http.Request) {
	params := request.ParseTenantList(r)

	tenants, hasMore, err := h.tenants.List(r.Context(), params)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var nextCursor string
	if hasMore && len(tenants) > 0 {
		nextCursor = tenants[len(tenants)-1].ID
	}
	response.WritePaginated(w, http.StatusOK, tenants, nextCursor, hasMore)
}

// Create provisions a tenant with its connections, content and admin.
func (h *Tenant) Create(w http.ResponseWriter, r *http.Request) {
	var req core.CreateTenantRequest
	if err := request.DecodeJSON(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	response.WriteResult(w, http.StatusCreated, h.lifecycle.Create(r.Context(), req))
}

func (h *Tenant) Get(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !checkTenantAccess(w, r, h.enforcer, id) {
		return
	}

	tenant, err := h.tenants.GetByID(r.Context(), id)
	if errors.Is(err, model.ErrNotFound) {
		response.WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response.WriteJSON(w, http.StatusOK, tenant)
}

func (h *Tenant) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.DeactivateTenant
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	response.WriteResult(w, http.StatusOK, h.lifecycle.Deactivate(r.Context(), id, req.Reason))
}

// Reactivate re-enables a tenant. The lifecycle refuses it with 409 when a
// connection probe fails.
func (h *Tenant) Reactivate(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	response.WriteResult(w, http.StatusOK, h.lifecycle.Reactivate(r.Context(), id))
}

// SaveConnection replaces the tenant's connection of the kind in the path.
func (h *Tenant) SaveConnection(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	kind, err := request.RequireKind(chi.URLParam(r, "kind"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var in core.ConnectionInput
	if err := request.DecodeJSON(r, &in); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := h.lifecycle.SaveConnection(r.Context(), id, kind, in)
	if err != nil {
		var verrs validator.ValidationErrors
		switch {
		case errors.As(err, &verrs):
			response.WriteError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, model.ErrNotFound):
			response.WriteError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, boundary.ErrViolation):
			response.WriteError(w, http.StatusForbidden, err.Error())
		default:
			response.WriteError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	response.WriteJSON(w, http.StatusOK, rec)
}

// RefreshConnections drops the tenant's cached connection parameters.
func (h *Tenant) RefreshConnections(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !checkTenantAccess(w, r, h.enforcer, id) {
		return
	}

	h.connections.RefreshConnections(r.Context(), id)
	w.WriteHeader(http.StatusNoContent)
}

// TestConnections probes each of the tenant's connections.
func (h *Tenant) TestConnections(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !checkTenantAccess(w, r, h.enforcer, id) {
		return
	}

	results := h.connections.TestConnection(r.Context(), id)
	healthy := len(results) > 0
	for _, ok := range results {
		healthy = healthy && ok
	}
	response.WriteJSON(w, http.StatusOK, ConnectionTestResponse{TenantID: id, Results: results, Healthy: healthy})
}
