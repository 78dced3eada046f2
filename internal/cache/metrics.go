package cache

import (
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/edvin/tenancy/internal/model"
)

// latencyWeight is the smoothing factor of the rolling fetch latency.
const latencyWeight = 0.2

// KindStats counts lookups of one connection kind.
type KindStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// TenantMetrics is the access history of one tenant. It steers caching
// policy and is never authoritative.
type TenantMetrics struct {
	TenantID          string                             `json:"tenant_id"`
	Kinds             map[model.ConnectionKind]KindStats `json:"kinds"`
	LastAccess        time.Time                          `json:"last_access"`
	AvgFetchLatency   time.Duration                      `json:"avg_fetch_latency"`
	LastEvictionCause EvictionCause                      `json:"last_eviction_cause,omitempty"`
	LastEvictionAt    *time.Time                         `json:"last_eviction_at,omitempty"`
}

func (m TenantMetrics) Hits() int64 {
	var n int64
	for _, k := range m.Kinds {
		n += k.Hits
	}
	return n
}

func (m TenantMetrics) Misses() int64 {
	var n int64
	for _, k := range m.Kinds {
		n += k.Misses
	}
	return n
}

func (m TenantMetrics) HitRate() float64 {
	return hitRate(m.Hits(), m.Misses())
}

func (m TenantMetrics) clone() TenantMetrics {
	c := m
	c.Kinds = maps.Clone(m.Kinds)
	if m.LastEvictionAt != nil {
		at := *m.LastEvictionAt
		c.LastEvictionAt = &at
	}
	return c
}

// Summary aggregates metrics over all tenants.
type Summary struct {
	Tenants         int           `json:"tenants"`
	Hits            int64         `json:"hits"`
	Misses          int64         `json:"misses"`
	HitRate         float64       `json:"hit_rate"`
	Evictions       int           `json:"tenants_with_evictions"`
	AvgFetchLatency time.Duration `json:"avg_fetch_latency"`
}

// MetricsStore tracks per-tenant cache metrics for the life of the process.
type MetricsStore struct {
	mu      sync.Mutex
	tenants map[string]*TenantMetrics
	clock   clock.Clock
}

func NewMetricsStore(clk clock.Clock) *MetricsStore {
	if clk == nil {
		clk = clock.New()
	}
	return &MetricsStore{tenants: make(map[string]*TenantMetrics), clock: clk}
}

func (s *MetricsStore) RecordHit(tenantID string, kind model.ConnectionKind) {
	s.update(tenantID, func(m *TenantMetrics) {
		k := m.Kinds[kind]
		k.Hits++
		m.Kinds[kind] = k
		m.LastAccess = s.clock.Now()
	})
}

func (s *MetricsStore) RecordMiss(tenantID string, kind model.ConnectionKind) {
	s.update(tenantID, func(m *TenantMetrics) {
		k := m.Kinds[kind]
		k.Misses++
		m.Kinds[kind] = k
		m.LastAccess = s.clock.Now()
	})
}

// RecordFetch folds a fetch latency into the rolling average.
func (s *MetricsStore) RecordFetch(tenantID string, latency time.Duration) {
	s.update(tenantID, func(m *TenantMetrics) {
		if m.AvgFetchLatency == 0 {
			m.AvgFetchLatency = latency
			return
		}
		m.AvgFetchLatency = time.Duration(latencyWeight*float64(latency) + (1-latencyWeight)*float64(m.AvgFetchLatency))
	})
}

func (s *MetricsStore) RecordEviction(tenantID string, cause EvictionCause) {
	s.update(tenantID, func(m *TenantMetrics) {
		at := s.clock.Now()
		m.LastEvictionCause = cause
		m.LastEvictionAt = &at
	})
}

// Get returns a copy of a tenant's metrics.
func (s *MetricsStore) Get(tenantID string) (TenantMetrics, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.tenants[tenantID]
	if !ok {
		return TenantMetrics{TenantID: tenantID}, false
	}
	return m.clone(), true
}

// Snapshot returns copies of all tenants' metrics ordered by tenant id.
func (s *MetricsStore) Snapshot() []TenantMetrics {
	s.mu.Lock()
	out := make([]TenantMetrics, 0, len(s.tenants))
	for _, m := range s.tenants {
		out = append(out, m.clone())
	}
	s.mu.Unlock()

	slices.SortFunc(out, func(a, b TenantMetrics) int { return strings.Compare(a.TenantID, b.TenantID) })
	return out
}

func (s *MetricsStore) Summary() Summary {
	snap := s.Snapshot()
	sum := Summary{Tenants: len(snap)}
	var latency time.Duration
	var measured int
	for _, m := range snap {
		sum.Hits += m.Hits()
		sum.Misses += m.Misses()
		if m.LastEvictionAt != nil {
			sum.Evictions++
		}
		if m.AvgFetchLatency > 0 {
			latency += m.AvgFetchLatency
			measured++
		}
	}
	sum.HitRate = hitRate(sum.Hits, sum.Misses)
	if measured > 0 {
		sum.AvgFetchLatency = latency / time.Duration(measured)
	}
	return sum
}

func (s *MetricsStore) update(tenantID string, fn func(*TenantMetrics)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.tenants[tenantID]
	if !ok {
		m = &TenantMetrics{TenantID: tenantID, Kinds: map[model.ConnectionKind]KindStats{}}
		s.tenants[tenantID] = m
	}
	fn(m)
}
