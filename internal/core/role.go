package core

import (
	"context"
	"fmt"

	"github.com/edvin/tenancy/internal/model"
	"github.com/edvin/tenancy/internal/platform"
)

type RoleService struct {
	db DB
}

func NewRoleService(db DB) *RoleService {
	return &RoleService{db: db}
}

// GetOrCreate returns the named role of a tenant, creating it on first use.
func (s *RoleService) GetOrCreate(ctx context.Context, tenantID, name string) (*model.Role, error) {
	var r model.Role
	err := s.db.QueryRow(ctx,
		`INSERT INTO roles (id, tenant_id, name, created_at) VALUES ($1, $2, $3, now())
		 ON CONFLICT (tenant_id, name) DO UPDATE SET name = roles.name
		 RETURNING id, tenant_id, name, created_at`,
		platform.NewID(), tenantID, name,
	).Scan(&r.ID, &r.TenantID, &r.Name, &r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get or create role %s for tenant %s: %w", name, tenantID, err)
	}
	return &r, nil
}

// Assign grants a role to a user. Granting twice is a no-op.
func (s *RoleService) Assign(ctx context.Context, userID, roleID string) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, roleID,
	)
	if err != nil {
		return fmt.Errorf("assign role %s to user %s: %w", roleID, userID, err)
	}
	return nil
}
