// Package cache wraps a connection resolver with an adaptive, per-tenant
// cache whose TTL and eviction priority follow observed access patterns.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/edvin/tenancy/internal/metrics"
	"github.com/edvin/tenancy/internal/model"
	"github.com/edvin/tenancy/internal/resolver"
)

// Options configure a CachingResolver.
type Options struct {
	BaseTTL    time.Duration
	MaxEntries int
	// FetchTimeout bounds a shared fetch from the inner resolver. It is
	// independent of any single caller's context.
	FetchTimeout time.Duration
	Clock        clock.Clock
}

const defaultFetchTimeout = 30 * time.Second

var _ resolver.Resolver = (*CachingResolver)(nil)

// CachingResolver caches resolved parameters under "{kind}:{tenantId}".
// Callers always receive their own copy of cached parameters.
type CachingResolver struct {
	inner   resolver.Resolver
	store   *Store[*model.ConnectionParams]
	metrics *MetricsStore
	policy  Policy
	timeout time.Duration
	clock   clock.Clock
	logger  zerolog.Logger

	flight singleflight.Group
	genMu  sync.Mutex
	gens   map[string]uint64
}

func NewCachingResolver(inner resolver.Resolver, opts Options, logger zerolog.Logger) *CachingResolver {
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	ttl := opts.BaseTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}

	timeout := opts.FetchTimeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}

	r := &CachingResolver{
		inner:   inner,
		metrics: NewMetricsStore(clk),
		policy:  Policy{BaseTTL: ttl},
		timeout: timeout,
		clock:   clk,
		logger:  logger.With().Str("component", "connection-cache").Logger(),
		gens:    make(map[string]uint64),
	}
	r.store = NewStore(opts.MaxEntries, clk, r.onEvict)
	return r
}

// Metrics exposes the per-tenant metrics store.
func (r *CachingResolver) Metrics() *MetricsStore {
	return r.metrics
}

// Store exposes the backing store, for sweeping and size reporting.
func (r *CachingResolver) Store() *Store[*model.ConnectionParams] {
	return r.store
}

func (r *CachingResolver) GetDatabaseConnection(ctx context.Context, tenantID string) (*model.ConnectionParams, error) {
	return r.get(ctx, tenantID, model.ConnectionKindDatabase, r.inner.GetDatabaseConnection)
}

func (r *CachingResolver) GetStorageConnection(ctx context.Context, tenantID string) (*model.ConnectionParams, error) {
	return r.get(ctx, tenantID, model.ConnectionKindStorage, r.inner.GetStorageConnection)
}

// RefreshConnections drops both cached kinds for the tenant and refreshes the
// inner resolver. Fetches already in flight for the tenant are not cached.
func (r *CachingResolver) RefreshConnections(ctx context.Context, tenantID string) {
	for _, kind := range model.ConnectionKinds {
		key := cacheKey(kind, tenantID)
		r.genMu.Lock()
		r.gens[key]++
		r.genMu.Unlock()
		r.flight.Forget(key)
		r.store.Remove(key)
	}
	r.inner.RefreshConnections(ctx, tenantID)
	r.logger.Debug().Str("tenant_id", tenantID).Msg("connections refreshed")
}

// TestConnection always calls through.
func (r *CachingResolver) TestConnection(ctx context.Context, tenantID string) map[model.ConnectionKind]bool {
	return r.inner.TestConnection(ctx, tenantID)
}

type fetchFunc func(ctx context.Context, tenantID string) (*model.ConnectionParams, error)

func (r *CachingResolver) get(ctx context.Context, tenantID string, kind model.ConnectionKind, fetch fetchFunc) (*model.ConnectionParams, error) {
	key := cacheKey(kind, tenantID)

	if params, ok := r.store.Get(key); ok {
		r.metrics.RecordHit(tenantID, kind)
		metrics.ConnectionCacheRequests.WithLabelValues(string(kind), "hit").Inc()
		return params.Clone(), nil
	}

	r.metrics.RecordMiss(tenantID, kind)
	metrics.ConnectionCacheRequests.WithLabelValues(string(kind), "miss").Inc()

	// The fetch is shared by every caller waiting on key, so it must not die
	// with whichever caller started it. Each caller still stops waiting when
	// its own context ends.
	ch := r.flight.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()

		gen := r.generation(key)
		start := r.clock.Now()
		params, err := fetch(fctx, tenantID)
		if err != nil {
			return nil, err
		}
		latency := r.clock.Since(start)
		r.metrics.RecordFetch(tenantID, latency)
		metrics.ConnectionFetchDuration.WithLabelValues(string(kind)).Observe(latency.Seconds())

		if gen == r.generation(key) {
			m, _ := r.metrics.Get(tenantID)
			priority := PriorityFor(m.Hits(), m.Misses())
			ttl := r.policy.TTLFor(m.Hits(), m.Misses())
			r.store.Set(key, params.Clone(), ttl, priority)
			metrics.ConnectionCacheEntries.Set(float64(r.store.Len()))
		}
		return params, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*model.ConnectionParams).Clone(), nil
	}
}

func (r *CachingResolver) generation(key string) uint64 {
	r.genMu.Lock()
	defer r.genMu.Unlock()
	return r.gens[key]
}

func (r *CachingResolver) onEvict(key string, _ *model.ConnectionParams, cause EvictionCause) {
	_, tenantID, ok := parseCacheKey(key)
	if !ok {
		return
	}
	r.metrics.RecordEviction(tenantID, cause)
	metrics.ConnectionCacheEvictions.WithLabelValues(string(cause)).Inc()
	metrics.ConnectionCacheEntries.Set(float64(r.store.Len()))
	r.logger.Debug().Str("tenant_id", tenantID).Str("key", key).Str("cause", string(cause)).Msg("cache entry evicted")
}

func cacheKey(kind model.ConnectionKind, tenantID string) string {
	return string(kind) + ":" + tenantID
}

func parseCacheKey(key string) (model.ConnectionKind, string, bool) {
	kind, tenantID, ok := strings.Cut(key, ":")
	return model.ConnectionKind(kind), tenantID, ok
}
