package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectionCacheRequests counts cached connection lookups by kind and
	// result (hit or miss).
	ConnectionCacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenancy_connection_cache_requests_total",
			Help: "Connection parameter cache lookups",
		},
		[]string{"kind", "result"},
	)

	ConnectionFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tenancy_connection_fetch_duration_seconds",
			Help:    "Time spent resolving connection parameters on a cache miss",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	ConnectionCacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenancy_connection_cache_evictions_total",
			Help: "Connection cache evictions by cause",
		},
		[]string{"cause"},
	)

	ConnectionCacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tenancy_connection_cache_entries",
		Help: "Entries currently held in the connection cache",
	})

	ConnectionProbes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenancy_connection_probes_total",
			Help: "Live connection probes by kind and result",
		},
		[]string{"kind", "result"},
	)

	BoundaryViolations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenancy_boundary_violations_total",
			Help: "Denied cross-tenant accesses by surface",
		},
		[]string{"surface"},
	)

	TenantHealthStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tenancy_tenants_health",
			Help: "Tenants by outcome of the last all-tenants health check",
		},
		[]string{"result"},
	)
)

// ProbeResult renders a probe outcome as a label value.
func ProbeResult(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
