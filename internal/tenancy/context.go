package tenancy

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cast"

	"github.com/edvin/tenancy/internal/config"
	"github.com/edvin/tenancy/internal/model"
	"github.com/edvin/tenancy/internal/platform"
)

// validationTimeout bounds the background existence check so it outlives the
// request that started it by at most this long.
const validationTimeout = 5 * time.Second

// TenantLookup is the registry view the context needs.
type TenantLookup interface {
	GetByID(ctx context.Context, id string) (*model.Tenant, error)
	GetByName(ctx context.Context, name string) (*model.Tenant, error)
}

// Options configure tenant resolution for one process.
type Options struct {
	MultiTenancyEnabled     bool
	GlobalTenantID          string
	ValidateTenantExistence bool
	TenantIDClaim           string
	TenantNameClaim         string
	UserIDClaim             string
	RolesClaim              string
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MultiTenancyEnabled:     cfg.MultiTenancyEnabled,
		GlobalTenantID:          cfg.GlobalTenantID,
		ValidateTenantExistence: cfg.ValidateTenantExistence,
		TenantIDClaim:           cfg.TenantIDClaim,
		TenantNameClaim:         cfg.TenantNameClaim,
		UserIDClaim:             cfg.UserIDClaim,
		RolesClaim:              cfg.RolesClaim,
	}
}

// Identity is the authenticated caller of an operation.
type Identity struct {
	UserID string         `json:"user_id"`
	Roles  []string       `json:"roles"`
	Claims map[string]any `json:"-"`
}

// IdentityFromClaims maps token claims onto an Identity using the configured
// claim names. Roles may be a list or a whitespace separated string.
func IdentityFromClaims(claims map[string]any, opts Options) *Identity {
	id := &Identity{Claims: claims}
	if v, ok := claims[opts.UserIDClaim]; ok {
		id.UserID = cast.ToString(v)
	}
	if v, ok := claims[opts.RolesClaim]; ok {
		id.Roles = cast.ToStringSlice(v)
	}
	return id
}

func (i *Identity) claim(name string) string {
	if i == nil || name == "" {
		return ""
	}
	v, ok := i.Claims[name]
	if !ok {
		return ""
	}
	return strings.TrimSpace(cast.ToString(v))
}

func (i *Identity) equal(o *Identity) bool {
	if i == nil || o == nil {
		return i == o
	}
	return i.UserID == o.UserID && slices.Equal(i.Roles, o.Roles)
}

// Validation is the outcome of checking the current tenant against the
// registry.
type Validation struct {
	TenantID string `json:"tenant_id"`
	Valid    bool   `json:"valid"`
	Reason   string `json:"reason,omitempty"`
}

// Context holds the current tenant and user of one operation. Setting the
// tenant stores it immediately; callers that need the existence check to have
// finished call AwaitValidated.
type Context struct {
	opts    Options
	tenants TenantLookup
	logger  zerolog.Logger

	mu         sync.Mutex
	tenantID   string
	user       *Identity
	generation uint64
	done       chan struct{}
	result     Validation
}

func New(opts Options, tenants TenantLookup, logger zerolog.Logger) *Context {
	done := make(chan struct{})
	close(done)
	return &Context{
		opts:    opts,
		tenants: tenants,
		logger:  logger.With().Str("component", "tenant-context").Logger(),
		done:    done,
		result:  Validation{Valid: true},
	}
}

// SetCurrentTenant sets the tenant for the operation. Setting the same id
// again is a no-op. A new id restarts validation.
func (c *Context) SetCurrentTenant(ctx context.Context, tenantID string) {
	tenantID = strings.TrimSpace(tenantID)

	c.mu.Lock()
	if tenantID == c.tenantID {
		c.mu.Unlock()
		return
	}
	c.tenantID = tenantID
	c.generation++
	gen := c.generation
	done := make(chan struct{})
	c.done = done

	if !c.needsValidation(tenantID) {
		c.result = Validation{TenantID: tenantID, Valid: true}
		close(done)
		c.mu.Unlock()
		return
	}
	c.result = Validation{TenantID: tenantID}
	c.mu.Unlock()

	go c.validate(context.WithoutCancel(ctx), gen, tenantID, done)
}

func (c *Context) needsValidation(tenantID string) bool {
	return c.opts.ValidateTenantExistence &&
		c.tenants != nil &&
		tenantID != "" &&
		tenantID != c.opts.GlobalTenantID
}

func (c *Context) validate(ctx context.Context, gen uint64, tenantID string, done chan struct{}) {
	defer close(done)

	ctx, cancel := context.WithTimeout(ctx, validationTimeout)
	defer cancel()

	reason := ""
	t, err := c.tenants.GetByID(ctx, tenantID)
	switch {
	case errors.Is(err, model.ErrNotFound):
		reason = "tenant does not exist"
	case err != nil:
		reason = "tenant lookup failed"
		c.logger.Warn().Err(err).Str("tenant_id", tenantID).Msg("tenant validation lookup failed")
	case !t.IsActive:
		reason = "tenant is inactive"
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return
	}
	if reason == "" {
		c.result = Validation{TenantID: tenantID, Valid: true}
		return
	}
	c.result = Validation{TenantID: tenantID, Reason: reason}
	c.tenantID = c.fallbackTenant()
	c.logger.Warn().
		Str("tenant_id", tenantID).
		Str("reason", reason).
		Str("fallback_tenant_id", c.tenantID).
		Msg("tenant rejected, falling back")
}

func (c *Context) fallbackTenant() string {
	if c.opts.MultiTenancyEnabled {
		return ""
	}
	return c.opts.GlobalTenantID
}

// AwaitValidated blocks until validation of the current tenant has finished
// or ctx is done. If the tenant changes while waiting, it waits for the new
// tenant's validation instead.
func (c *Context) AwaitValidated(ctx context.Context) (Validation, error) {
	for {
		c.mu.Lock()
		gen, done := c.generation, c.done
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return Validation{}, ctx.Err()
		case <-done:
		}

		c.mu.Lock()
		if c.generation == gen {
			res := c.result
			c.mu.Unlock()
			return res, nil
		}
		c.mu.Unlock()
	}
}

// CurrentTenantID returns the tenant of the operation. With multi-tenancy
// disabled an unset tenant reads as the global tenant.
func (c *Context) CurrentTenantID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tenantID == "" && !c.opts.MultiTenancyEnabled {
		return c.opts.GlobalTenantID
	}
	return c.tenantID
}

// SetCurrentUser sets the caller. When no tenant is set yet, the tenant is
// derived from the identity's tenant id claim, or failing that its tenant
// name claim resolved through the registry.
func (c *Context) SetCurrentUser(ctx context.Context, user *Identity) error {
	c.mu.Lock()
	if c.user.equal(user) {
		c.mu.Unlock()
		return nil
	}
	c.user = user
	hasTenant := c.tenantID != ""
	c.mu.Unlock()

	if hasTenant || user == nil {
		return nil
	}

	if id := user.claim(c.opts.TenantIDClaim); id != "" && platform.IsUUID(id) {
		c.SetCurrentTenant(ctx, id)
		return nil
	}

	name := user.claim(c.opts.TenantNameClaim)
	if name == "" || c.tenants == nil {
		return nil
	}
	t, err := c.tenants.GetByName(ctx, platform.NormalizeTenantName(name))
	if errors.Is(err, model.ErrNotFound) {
		c.logger.Debug().Str("tenant_name", name).Msg("tenant name claim does not match a tenant")
		return nil
	}
	if err != nil {
		return err
	}
	c.SetCurrentTenant(ctx, t.ID)
	return nil
}

func (c *Context) CurrentUser() *Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

// IsRoot reports whether the caller holds the root or admin role.
func (c *Context) IsRoot() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user == nil {
		return false
	}
	return slices.ContainsFunc(c.user.Roles, func(r string) bool {
		return strings.EqualFold(r, model.RoleRoot) || strings.EqualFold(r, model.RoleAdmin)
	})
}

// HasAccessToTenant reports whether the caller may act on tenantID.
func (c *Context) HasAccessToTenant(tenantID string) bool {
	if c.IsRoot() {
		return true
	}
	if !c.opts.MultiTenancyEnabled && tenantID == c.opts.GlobalTenantID {
		return true
	}
	return tenantID == c.CurrentTenantID()
}

func (c *Context) IsMultiTenancyEnabled() bool {
	return c.opts.MultiTenancyEnabled
}

type contextKey struct{}

// WithContext attaches tc to ctx.
func WithContext(ctx context.Context, tc *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, tc)
}

// FromContext returns the tenant context attached to ctx, or nil.
func FromContext(ctx context.Context) *Context {
	tc, _ := ctx.Value(contextKey{}).(*Context)
	return tc
}
