package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/tenancy/internal/model"
)

const connectionColumns = `id, tenant_id, kind, provider, encrypted_credential, database_name, container_name,
	settings, is_active, created_at, updated_at`

// ConnectionService persists per-tenant connection records.
type ConnectionService struct {
	db DB
}

func NewConnectionService(db DB) *ConnectionService {
	return &ConnectionService{db: db}
}

// GetByTenantAndKind returns the most recently updated active record for the
// tenant and kind, or model.ErrNotFound.
func (s *ConnectionService) GetByTenantAndKind(ctx context.Context, tenantID string, kind model.ConnectionKind) (*model.ConnectionRecord, error) {
	rec, err := scanConnection(s.db.QueryRow(ctx,
		`SELECT `+connectionColumns+` FROM tenant_connections
		 WHERE tenant_id = $1 AND kind = $2 AND is_active
		 ORDER BY updated_at DESC LIMIT 1`,
		tenantID, string(kind),
	))
	if err != nil {
		return nil, fmt.Errorf("get %s connection for tenant %s: %w", kind, tenantID, err)
	}
	return rec, nil
}

// Upsert stores a record, replacing the active record of the same tenant and
// kind if one exists.
func (s *ConnectionService) Upsert(ctx context.Context, rec *model.ConnectionRecord) error {
	settings := rec.Settings
	if settings == nil {
		settings = map[string]string{}
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO tenant_connections (id, tenant_id, kind, provider, encrypted_credential, database_name,
		 container_name, settings, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, true, $9, $9)
		 ON CONFLICT (tenant_id, kind) WHERE is_active DO UPDATE SET
		   provider = EXCLUDED.provider,
		   encrypted_credential = EXCLUDED.encrypted_credential,
		   database_name = EXCLUDED.database_name,
		   container_name = EXCLUDED.container_name,
		   settings = EXCLUDED.settings,
		   updated_at = EXCLUDED.updated_at`,
		rec.ID, rec.TenantID, string(rec.Kind), rec.Provider, rec.EncryptedCredential, rec.DatabaseName,
		rec.ContainerName, settings, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert %s connection for tenant %s: %w", rec.Kind, rec.TenantID, err)
	}
	return nil
}

func (s *ConnectionService) ListByTenant(ctx context.Context, tenantID string) ([]model.ConnectionRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+connectionColumns+` FROM tenant_connections WHERE tenant_id = $1 AND is_active ORDER BY kind`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("list connections for tenant %s: %w", tenantID, err)
	}
	defer rows.Close()

	var recs []model.ConnectionRecord
	for rows.Next() {
		rec, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		recs = append(recs, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate connections: %w", err)
	}
	return recs, nil
}

// Delete removes every record of the given kind for a tenant.
func (s *ConnectionService) Delete(ctx context.Context, tenantID string, kind model.ConnectionKind) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM tenant_connections WHERE tenant_id = $1 AND kind = $2`, tenantID, string(kind))
	if err != nil {
		return fmt.Errorf("delete %s connection for tenant %s: %w", kind, tenantID, err)
	}
	return nil
}

func scanConnection(row pgx.Row) (*model.ConnectionRecord, error) {
	var rec model.ConnectionRecord
	var kind string
	err := row.Scan(&rec.ID, &rec.TenantID, &kind, &rec.Provider, &rec.EncryptedCredential, &rec.DatabaseName,
		&rec.ContainerName, &rec.Settings, &rec.IsActive, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	rec.Kind = model.ConnectionKind(kind)
	return &rec, nil
}
