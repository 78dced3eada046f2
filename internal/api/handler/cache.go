package handler

import (
	"net/http"

	"github.com/edvin/tenancy/internal/api/response"
	"github.com/edvin/tenancy/internal/cache"
)

// CacheMetricsSource exposes the connection cache's per-tenant metrics.
type CacheMetricsSource interface {
	Summary() cache.Summary
	Snapshot() []cache.TenantMetrics
}

type Cache struct {
	metrics CacheMetricsSource
}

func NewCache(metrics CacheMetricsSource) *Cache {
	return &Cache{metrics: metrics}
}

// CacheMetricsResponse is the body of GET /cache/metrics.
type CacheMetricsResponse struct {
	Summary cache.Summary         `json:"summary"`
	Tenants []cache.TenantMetrics `json:"tenants"`
}

func (h *Cache) Metrics(w http.ResponseWriter, r *http.Request) {
	response.WriteJSON(w, http.StatusOK, CacheMetricsResponse{
		Summary: h.metrics.Summary(),
		Tenants: h.metrics.Snapshot(),
	})
}
