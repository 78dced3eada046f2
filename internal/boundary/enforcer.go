package boundary

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/edvin/tenancy/internal/metrics"
)

// ErrViolation matches every *ViolationError with errors.Is.
var ErrViolation = errors.New("tenant boundary violation")

// Surfaces label where a check ran.
const (
	SurfaceEntity = "entity"
	SurfaceEvent  = "event"
	SurfaceHTTP   = "http"
)

// ViolationError records a denied cross-tenant access.
type ViolationError struct {
	Surface         string
	CurrentTenantID string
	TargetTenantID  string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("tenant boundary violation on %s: current tenant %q, target tenant %q",
		e.Surface, e.CurrentTenantID, e.TargetTenantID)
}

func (e *ViolationError) Is(target error) bool {
	return target == ErrViolation
}

// TenantScoped is an entity owned by a tenant.
type TenantScoped interface {
	GetTenantID() string
	SetTenantID(id string)
}

// TenantSource supplies the tenant of the running operation.
type TenantSource interface {
	CurrentTenantID() string
	IsMultiTenancyEnabled() bool
}

// Scope is a TenantSource fixed to one tenant, for code acting on that
// tenant's behalf.
type Scope struct {
	TenantID    string
	MultiTenant bool
}

func (s Scope) CurrentTenantID() string     { return s.TenantID }
func (s Scope) IsMultiTenancyEnabled() bool { return s.MultiTenant }

// Allowed reports whether an operation running as current may touch data
// owned by target. Everything is allowed with enforcement off or when both
// sides are tenant-less. Otherwise the ids must match.
func Allowed(enabled bool, current, target string) bool {
	if !enabled {
		return true
	}
	if current == "" && target == "" {
		return true
	}
	return current == target
}

// Enforcer checks tenant ownership against the current tenant.
type Enforcer struct {
	logger zerolog.Logger
}

func NewEnforcer(logger zerolog.Logger) *Enforcer {
	return &Enforcer{logger: logger.With().Str("component", "boundary").Logger()}
}

// ValidateEntityAccess reports whether the current tenant may access entity.
// A false result must lead to a denial.
func (e *Enforcer) ValidateEntityAccess(src TenantSource, entity TenantScoped) bool {
	return e.Check(src, SurfaceEntity, entity.GetTenantID()) == nil
}

// ValidateEventAccess reports whether the current tenant may handle an event
// raised for eventTenantID.
func (e *Enforcer) ValidateEventAccess(src TenantSource, eventTenantID string) bool {
	return e.Check(src, SurfaceEvent, eventTenantID) == nil
}

// EnsureEntityTenantContext stamps the current tenant onto an entity that has
// none, then validates access. It must run before the entity is first
// persisted.
func (e *Enforcer) EnsureEntityTenantContext(src TenantSource, entity TenantScoped) error {
	if entity.GetTenantID() == "" && src.IsMultiTenancyEnabled() {
		entity.SetTenantID(src.CurrentTenantID())
	}
	if err := e.Check(src, SurfaceEntity, entity.GetTenantID()); err != nil {
		return err
	}
	return nil
}

// Check returns a *ViolationError when the current tenant may not access
// targetTenantID. Denials are logged and counted.
func (e *Enforcer) Check(src TenantSource, surface, targetTenantID string) error {
	current := src.CurrentTenantID()
	if Allowed(src.IsMultiTenancyEnabled(), current, targetTenantID) {
		return nil
	}
	metrics.BoundaryViolations.WithLabelValues(surface).Inc()
	e.logger.Warn().
		Str("surface", surface).
		Str("current_tenant_id", current).
		Str("target_tenant_id", targetTenantID).
		Msg("tenant boundary violation")
	return &ViolationError{Surface: surface, CurrentTenantID: current, TargetTenantID: targetTenantID}
}
