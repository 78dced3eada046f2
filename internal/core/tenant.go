package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/tenancy/internal/model"
)

const tenantColumns = `id, name, display_name, is_active, created_at, deactivated_at, deactivation_reason,
	reactivated_at, settings, tags, template_set_id`

// TenantService is the tenant registry.
type TenantService struct {
	db DB
}

func NewTenantService(db DB) *TenantService {
	return &TenantService{db: db}
}

// Create inserts a tenant row. Re-inserting the same id is a no-op so that
// retried workflow steps stay idempotent; reusing a name fails with
// model.ErrDuplicateName.
func (s *TenantService) Create(ctx context.Context, tenant *model.Tenant) error {
	settings := tenant.Settings
	if settings == nil {
		settings = map[string]string{}
	}
	tags := tenant.Tags
	if tags == nil {
		tags = []string{}
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO tenants (id, name, display_name, is_active, created_at, deactivated_at, deactivation_reason,
		 reactivated_at, settings, tags, template_set_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO NOTHING`,
		tenant.ID, tenant.Name, tenant.DisplayName, tenant.IsActive, tenant.CreatedAt, tenant.DeactivatedAt,
		tenant.DeactivationReason, tenant.ReactivatedAt, settings, tags, tenant.TemplateSetID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert tenant %s: %w", tenant.Name, model.ErrDuplicateName)
		}
		return fmt.Errorf("insert tenant: %w", err)
	}
	return nil
}

func (s *TenantService) GetByID(ctx context.Context, id string) (*model.Tenant, error) {
	t, err := scanTenant(s.db.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get tenant %s: %w", id, err)
	}
	return t, nil
}

// GetByName looks a tenant up by its unique, case-insensitive name.
func (s *TenantService) GetByName(ctx context.Context, name string) (*model.Tenant, error) {
	t, err := scanTenant(s.db.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE lower(name) = lower($1)`, name))
	if err != nil {
		return nil, fmt.Errorf("get tenant by name %s: %w", name, err)
	}
	return t, nil
}

// NameExists reports whether a tenant with this name already exists.
func (s *TenantService) NameExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM tenants WHERE lower(name) = lower($1))`, name,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check tenant name %s: %w", name, err)
	}
	return exists, nil
}

// ListParams controls tenant listing.
type ListParams struct {
	Active *bool
	Search string
	Cursor string
	Limit  int
}

func (s *TenantService) List(ctx context.Context, params ListParams) ([]model.Tenant, bool, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE true`
	args := []any{}
	argIdx := 1

	if params.Active != nil {
		query += fmt.Sprintf(` AND is_active = $%d`, argIdx)
		args = append(args, *params.Active)
		argIdx++
	}
	if params.Search != "" {
		query += fmt.Sprintf(` AND name ILIKE $%d`, argIdx)
		args = append(args, "%"+params.Search+"%")
		argIdx++
	}
	if params.Cursor != "" {
		query += fmt.Sprintf(` AND id > $%d`, argIdx)
		args = append(args, params.Cursor)
		argIdx++
	}

	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` ORDER BY id`
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit+1)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []model.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, false, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate tenants: %w", err)
	}

	hasMore := len(tenants) > limit
	if hasMore {
		tenants = tenants[:limit]
	}
	return tenants, hasMore, nil
}

// ListActive returns up to limit active tenants, oldest first.
func (s *TenantService) ListActive(ctx context.Context, limit int) ([]model.Tenant, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE is_active ORDER BY created_at LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list active tenants: %w", err)
	}
	defer rows.Close()

	var tenants []model.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tenants: %w", err)
	}
	return tenants, nil
}

// Deactivate flips the active flag off and records when and why.
func (s *TenantService) Deactivate(ctx context.Context, id, reason string, at time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE tenants SET is_active = false, deactivated_at = $1, deactivation_reason = $2 WHERE id = $3`,
		at, reason, id,
	)
	if err != nil {
		return fmt.Errorf("deactivate tenant %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("deactivate tenant %s: %w", id, model.ErrNotFound)
	}
	return nil
}

// Reactivate flips the active flag on and clears the deactivation fields.
func (s *TenantService) Reactivate(ctx context.Context, id string, at time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE tenants SET is_active = true, deactivated_at = NULL, deactivation_reason = NULL, reactivated_at = $1
		 WHERE id = $2`,
		at, id,
	)
	if err != nil {
		return fmt.Errorf("reactivate tenant %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reactivate tenant %s: %w", id, model.ErrNotFound)
	}
	return nil
}

// Delete removes a tenant row and, by cascade, everything scoped to it.
// Only used to compensate a failed creation.
func (s *TenantService) Delete(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete tenant %s: %w", id, err)
	}
	return nil
}

// Count returns the number of tenants. Doubles as a registry reachability probe.
func (s *TenantService) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM tenants`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count tenants: %w", err)
	}
	return n, nil
}

func scanTenant(row pgx.Row) (*model.Tenant, error) {
	var t model.Tenant
	err := row.Scan(&t.ID, &t.Name, &t.DisplayName, &t.IsActive, &t.CreatedAt, &t.DeactivatedAt,
		&t.DeactivationReason, &t.ReactivatedAt, &t.Settings, &t.Tags, &t.TemplateSetID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}
