package core

import (
	"context"
	"fmt"

	"github.com/edvin/tenancy/internal/model"
)

// ContentService seeds and removes tenant-scoped content.
type ContentService struct {
	db DB
}

func NewContentService(db DB) *ContentService {
	return &ContentService{db: db}
}

// InitializeTenant copies a template set into the tenant's content and
// returns the number of items created. Items already present are kept.
func (s *ContentService) InitializeTenant(ctx context.Context, tenantID, templateSetID string) (int64, error) {
	if templateSetID == "" {
		templateSetID = model.DefaultTemplateSet
	}
	tag, err := s.db.Exec(ctx,
		`INSERT INTO tenant_content (id, tenant_id, template_set_id, kind, name, body, created_at)
		 SELECT gen_random_uuid()::text, $1, t.template_set_id, t.kind, t.name, t.body, now()
		 FROM content_templates t WHERE t.template_set_id = $2
		 ON CONFLICT (tenant_id, kind, name) DO NOTHING`,
		tenantID, templateSetID,
	)
	if err != nil {
		return 0, fmt.Errorf("initialize content for tenant %s: %w", tenantID, err)
	}
	return tag.RowsAffected(), nil
}

func (s *ContentService) RemoveTenant(ctx context.Context, tenantID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM tenant_content WHERE tenant_id = $1`, tenantID); err != nil {
		return fmt.Errorf("remove content for tenant %s: %w", tenantID, err)
	}
	return nil
}

func (s *ContentService) ListByTenant(ctx context.Context, tenantID string) ([]model.ContentItem, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, tenant_id, template_set_id, kind, name, body, created_at
		 FROM tenant_content WHERE tenant_id = $1 ORDER BY kind, name`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list content for tenant %s: %w", tenantID, err)
	}
	defer rows.Close()

	var items []model.ContentItem
	for rows.Next() {
		var c model.ContentItem
		if err := rows.Scan(&c.ID, &c.TenantID, &c.TemplateSetID, &c.Kind, &c.Name, &c.Body, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan content item: %w", err)
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate content: %w", err)
	}
	return items, nil
}
