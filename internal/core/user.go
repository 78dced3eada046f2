package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/tenancy/internal/model"
)

type UserService struct {
	db DB
}

func NewUserService(db DB) *UserService {
	return &UserService{db: db}
}

// Create inserts a user. If a user with the same email already exists in the
// tenant, its id is returned instead.
func (s *UserService) Create(ctx context.Context, user *model.User) (string, error) {
	var id string
	err := s.db.QueryRow(ctx,
		`INSERT INTO users (id, tenant_id, email, display_name, password_hash, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		 ON CONFLICT (tenant_id, lower(email)) DO UPDATE SET updated_at = users.updated_at
		 RETURNING id`,
		user.ID, user.TenantID, user.Email, user.DisplayName, user.PasswordHash, user.IsActive, user.CreatedAt,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert user %s: %w", user.Email, err)
	}
	return id, nil
}

func (s *UserService) GetByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := s.db.QueryRow(ctx,
		`SELECT id, tenant_id, email, display_name, password_hash, is_active, created_at, updated_at
		 FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.TenantID, &u.Email, &u.DisplayName, &u.PasswordHash, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get user %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return &u, nil
}

func (s *UserService) Delete(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete user %s: %w", id, err)
	}
	return nil
}

// SetActiveByTenant flips the active flag for every user of the tenant and
// returns how many rows changed.
func (s *UserService) SetActiveByTenant(ctx context.Context, tenantID string, active bool) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE users SET is_active = $1, updated_at = now() WHERE tenant_id = $2 AND is_active <> $1`,
		active, tenantID,
	)
	if err != nil {
		return 0, fmt.Errorf("set users active=%t for tenant %s: %w", active, tenantID, err)
	}
	return tag.RowsAffected(), nil
}

// Roles returns the role names held by a user.
func (s *UserService) Roles(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT r.name FROM roles r JOIN user_roles ur ON ur.role_id = r.id WHERE ur.user_id = $1 ORDER BY r.name`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list roles for user %s: %w", userID, err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}
	return roles, nil
}
