package handler

import (
	"context"
	"net/http"

	"github.com/edvin/tenancy/internal/api/response"
	"github.com/edvin/tenancy/internal/health"
)

// HealthChecker produces tenant health reports.
type HealthChecker interface {
	TenantSystem(ctx context.Context) health.Report
	AllTenants(ctx context.Context) health.Report
}

type Health struct {
	checker HealthChecker
}

func NewHealth(checker HealthChecker) *Health {
	return &Health{checker: checker}
}

func (h *Health) TenantSystem(w http.ResponseWriter, r *http.Request) {
	writeReport(w, h.checker.TenantSystem(r.Context()))
}

func (h *Health) AllTenants(w http.ResponseWriter, r *http.Request) {
	writeReport(w, h.checker.AllTenants(r.Context()))
}

// writeReport answers 503 only for an unhealthy report. Degraded still
// serves traffic.
func writeReport(w http.ResponseWriter, report health.Report) {
	status := http.StatusOK
	if report.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	response.WriteJSON(w, status, report)
}
