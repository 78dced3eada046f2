package cache

import "time"

// Priority orders entries for capacity eviction. Lower priorities go first;
// PriorityNeverEvict entries are never chosen.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityNeverEvict
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityNeverEvict:
		return "never"
	}
	return "unknown"
}

const (
	// SlidingExpiration drops an entry after this long without a read,
	// whatever its absolute TTL.
	SlidingExpiration = 5 * time.Minute

	minTTL       = 5 * time.Minute
	ttlExtension = 15 * time.Minute
)

// Access-count and hit-rate thresholds for the priority tiers.
const (
	normalAccesses = 10
	highAccesses   = 100
	neverAccesses  = 1000

	normalHitRate = 0.7
	highHitRate   = 0.9
)

// Policy derives eviction priority and TTL from a tenant's access history.
type Policy struct {
	BaseTTL time.Duration
}

// PriorityFor maps cumulative hits and misses to a priority tier. Tenants
// with fewer than ten accesses are always low priority; never-evict requires
// both a thousand accesses and a hit rate above 0.9.
func PriorityFor(hits, misses int64) Priority {
	total := hits + misses
	if total < normalAccesses {
		return PriorityLow
	}
	rate := hitRate(hits, misses)
	if total >= neverAccesses && rate > highHitRate {
		return PriorityNeverEvict
	}

	byCount := PriorityNormal
	if total >= highAccesses {
		byCount = PriorityHigh
	}
	byRate := PriorityLow
	switch {
	case rate > highHitRate:
		byRate = PriorityHigh
	case rate > normalHitRate:
		byRate = PriorityNormal
	}
	return max(byCount, byRate)
}

// TTLFor extends the base TTL for well-reused entries and shortens it, never
// below five minutes, for rarely reused ones.
func (p Policy) TTLFor(hits, misses int64) time.Duration {
	rate := hitRate(hits, misses)
	switch {
	case rate > 0.8:
		return p.BaseTTL + ttlExtension
	case rate < 0.3:
		return max(p.BaseTTL/2, minTTL)
	}
	return p.BaseTTL
}

func hitRate(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
