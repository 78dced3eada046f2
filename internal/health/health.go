package health

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/edvin/tenancy/internal/config"
	"github.com/edvin/tenancy/internal/metrics"
	"github.com/edvin/tenancy/internal/model"
	"github.com/edvin/tenancy/internal/tenancy"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check is the outcome of one probe.
type Check struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// TenantStatus is the probe outcome of one tenant.
type TenantStatus struct {
	TenantID    string                        `json:"tenant_id"`
	Name        string                        `json:"name"`
	Healthy     bool                          `json:"healthy"`
	Connections map[model.ConnectionKind]bool `json:"connections,omitempty"`
	Error       string                        `json:"error,omitempty"`
}

type Report struct {
	Status    Status         `json:"status"`
	Checks    []Check        `json:"checks,omitempty"`
	Tenants   []TenantStatus `json:"tenants,omitempty"`
	Checked   int            `json:"checked"`
	Unhealthy int            `json:"unhealthy"`
	Duration  time.Duration  `json:"duration"`
}

// Registry is the tenant registry view used by the checks.
type Registry interface {
	Count(ctx context.Context) (int, error)
	ListActive(ctx context.Context, limit int) ([]model.Tenant, error)
}

// ConnectionTester runs live probes against a tenant's connections.
type ConnectionTester interface {
	TestConnection(ctx context.Context, tenantID string) map[model.ConnectionKind]bool
}

type Options struct {
	SampleSize         int
	UnhealthyThreshold int
	Concurrency        int
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		SampleSize:         cfg.HealthSampleSize,
		UnhealthyThreshold: cfg.HealthUnhealthyThreshold,
		Concurrency:        cfg.HealthConcurrency,
	}
}

// Checker runs tenant health checks. Its methods never fail; every problem is
// reported in the returned Report.
type Checker struct {
	registry Registry
	tester   ConnectionTester
	opts     Options
	logger   zerolog.Logger
}

func NewChecker(registry Registry, tester ConnectionTester, opts Options, logger zerolog.Logger) *Checker {
	if opts.SampleSize <= 0 {
		opts.SampleSize = 50
	}
	if opts.UnhealthyThreshold <= 0 {
		opts.UnhealthyThreshold = 1
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 10
	}
	return &Checker{
		registry: registry,
		tester:   tester,
		opts:     opts,
		logger:   logger.With().Str("component", "health").Logger(),
	}
}

// TenantSystem checks registry reachability, the tenant context attached to
// ctx and the connections of the current tenant.
func (c *Checker) TenantSystem(ctx context.Context) Report {
	start := time.Now()
	report := Report{Status: StatusHealthy}

	registry := Check{Name: "registry", Healthy: true}
	if n, err := c.registry.Count(ctx); err != nil {
		registry.Healthy = false
		registry.Detail = err.Error()
		report.Status = StatusUnhealthy
	} else {
		registry.Detail = fmt.Sprintf("%d tenants", n)
	}
	report.Checks = append(report.Checks, registry)

	tc := tenancy.FromContext(ctx)
	tenantCheck := Check{Name: "tenant_context", Healthy: tc != nil}
	switch {
	case tc == nil:
		tenantCheck.Detail = "no tenant context"
		report.Status = worse(report.Status, StatusDegraded)
	case tc.CurrentTenantID() == "":
		tenantCheck.Detail = "no current tenant"
	default:
		tenantCheck.Detail = tc.CurrentTenantID()
	}
	report.Checks = append(report.Checks, tenantCheck)

	if tc != nil && tc.CurrentTenantID() != "" {
		results := c.tester.TestConnection(ctx, tc.CurrentTenantID())
		for _, kind := range model.ConnectionKinds {
			ok := results[kind]
			report.Checks = append(report.Checks, Check{Name: "connection_" + string(kind), Healthy: ok})
			if !ok {
				report.Status = worse(report.Status, StatusDegraded)
			}
		}
	}

	for _, ch := range report.Checks {
		report.Checked++
		if !ch.Healthy {
			report.Unhealthy++
		}
	}
	report.Duration = time.Since(start)
	return report
}

// AllTenants probes a sample of active tenants concurrently. The status is
// healthy with no unhealthy tenant, degraded below the threshold and
// unhealthy at or above it.
func (c *Checker) AllTenants(ctx context.Context) Report {
	start := time.Now()

	tenants, err := c.registry.ListActive(ctx, c.opts.SampleSize)
	if err != nil {
		c.logger.Error().Err(err).Msg("list tenants for health check")
		return Report{
			Status:   StatusUnhealthy,
			Checks:   []Check{{Name: "registry", Detail: err.Error()}},
			Duration: time.Since(start),
		}
	}

	statuses := make([]TenantStatus, len(tenants))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)
	for i, t := range tenants {
		g.Go(func() error {
			statuses[i] = c.probeTenant(gctx, t)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{Tenants: statuses, Checked: len(statuses)}
	for _, st := range statuses {
		if !st.Healthy {
			report.Unhealthy++
		}
	}
	switch {
	case report.Unhealthy == 0:
		report.Status = StatusHealthy
	case report.Unhealthy < c.opts.UnhealthyThreshold:
		report.Status = StatusDegraded
	default:
		report.Status = StatusUnhealthy
	}
	report.Duration = time.Since(start)

	metrics.TenantHealthStatus.WithLabelValues("healthy").Set(float64(report.Checked - report.Unhealthy))
	metrics.TenantHealthStatus.WithLabelValues("unhealthy").Set(float64(report.Unhealthy))
	c.logger.Info().
		Str("status", string(report.Status)).
		Int("checked", report.Checked).
		Int("unhealthy", report.Unhealthy).
		Dur("duration", report.Duration).
		Msg("all-tenants health check")
	return report
}

func (c *Checker) probeTenant(ctx context.Context, t model.Tenant) (st TenantStatus) {
	st = TenantStatus{TenantID: t.ID, Name: t.Name}
	defer func() {
		if r := recover(); r != nil {
			st.Healthy = false
			st.Error = fmt.Sprintf("probe panicked: %v", r)
			c.logger.Error().Str("tenant_id", t.ID).Interface("panic", r).Msg("tenant probe panicked")
		}
	}()

	st.Connections = c.tester.TestConnection(ctx, t.ID)
	st.Healthy = true
	for _, kind := range model.ConnectionKinds {
		if !st.Connections[kind] {
			st.Healthy = false
		}
	}
	return st
}

func worse(a, b Status) Status {
	rank := map[Status]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnhealthy: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
