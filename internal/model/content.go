package model

import "time"

// ContentItem is a tenant-scoped template, form or rule seeded from a
// template set when the tenant is created.
type ContentItem struct {
	ID            string    `json:"id" db:"id"`
	TenantID      string    `json:"tenant_id" db:"tenant_id"`
	TemplateSetID string    `json:"template_set_id" db:"template_set_id"`
	Kind          string    `json:"kind" db:"kind"`
	Name          string    `json:"name" db:"name"`
	Body          string    `json:"body" db:"body"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// DefaultTemplateSet is seeded when a create request names none.
const DefaultTemplateSet = "default"
