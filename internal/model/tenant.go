package model

import "time"

type Tenant struct {
	ID                 string            `json:"id" db:"id"`
	Name               string            `json:"name" db:"name"`
	DisplayName        string            `json:"display_name" db:"display_name"`
	IsActive           bool              `json:"is_active" db:"is_active"`
	CreatedAt          time.Time         `json:"created_at" db:"created_at"`
	DeactivatedAt      *time.Time        `json:"deactivated_at,omitempty" db:"deactivated_at"`
	DeactivationReason *string           `json:"deactivation_reason,omitempty" db:"deactivation_reason"`
	ReactivatedAt      *time.Time        `json:"reactivated_at,omitempty" db:"reactivated_at"`
	Settings           map[string]string `json:"settings" db:"settings"`
	Tags               []string          `json:"tags" db:"tags"`
	TemplateSetID      *string           `json:"template_set_id,omitempty" db:"template_set_id"`
}

// Deactivate marks the tenant inactive, keeping IsActive and DeactivatedAt
// consistent.
func (t *Tenant) Deactivate(at time.Time, reason string) {
	t.IsActive = false
	t.DeactivatedAt = &at
	t.DeactivationReason = &reason
}

// Reactivate marks the tenant active and clears the deactivation fields.
func (t *Tenant) Reactivate(at time.Time) {
	t.IsActive = true
	t.DeactivatedAt = nil
	t.DeactivationReason = nil
	t.ReactivatedAt = &at
}
