package request

// DeactivateTenant is the body of POST /tenants/{id}/deactivate.
type DeactivateTenant struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// LookupTenant is the body of tenant name lookups.
type LookupTenant struct {
	Name string `json:"name" validate:"required,tenant_name"`
}
