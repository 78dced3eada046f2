package cache

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
)

// Reporter periodically logs a summary of cache metrics.
type Reporter struct {
	cache    *CachingResolver
	interval time.Duration
	clock    clock.Clock
	logger   zerolog.Logger
}

func NewReporter(cache *CachingResolver, interval time.Duration, logger zerolog.Logger) *Reporter {
	return &Reporter{
		cache:    cache,
		interval: interval,
		clock:    cache.clock,
		logger:   logger.With().Str("component", "cache-reporter").Logger(),
	}
}

// Run logs a summary every interval until ctx is done.
func (r *Reporter) Run(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	ticker := r.clock.Ticker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Report()
		}
	}
}

// Report logs and returns the current summary.
func (r *Reporter) Report() Summary {
	sum := r.cache.Metrics().Summary()
	r.logger.Info().
		Int("tenants", sum.Tenants).
		Int64("hits", sum.Hits).
		Int64("misses", sum.Misses).
		Float64("hit_rate", sum.HitRate).
		Int("entries", r.cache.Store().Len()).
		Int("tenants_with_evictions", sum.Evictions).
		Dur("avg_fetch_latency", sum.AvgFetchLatency).
		Msg("connection cache summary")
	return sum
}
