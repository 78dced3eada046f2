package model

import "time"

// Application error types raised by lifecycle workflows and activities.
const (
	ErrTypeDuplicateName       = "DuplicateName"
	ErrTypeNotFound            = "NotFound"
	ErrTypeReactivationRefused = "ReactivationRefused"
	ErrTypeDecryption          = "Decryption"
)

// ConnectionSpec describes a connection record to create for a new tenant.
// The credential is already an encryption envelope.
type ConnectionSpec struct {
	Kind                ConnectionKind    `json:"kind"`
	Provider            string            `json:"provider"`
	EncryptedCredential string            `json:"encrypted_credential,omitempty"`
	DatabaseName        string            `json:"database_name,omitempty"`
	ContainerName       string            `json:"container_name,omitempty"`
	Settings            map[string]string `json:"settings,omitempty"`
}

// AdminSpec describes the administrative identity seeded for a new tenant.
type AdminSpec struct {
	Email        string `json:"email"`
	DisplayName  string `json:"display_name"`
	PasswordHash string `json:"password_hash"`
}

// CreateTenantParams is the input of CreateTenantWorkflow.
type CreateTenantParams struct {
	Tenant          Tenant           `json:"tenant"`
	Connections     []ConnectionSpec `json:"connections,omitempty"`
	TemplateSetID   string           `json:"template_set_id"`
	Admin           *AdminSpec       `json:"admin,omitempty"`
	TestConnections bool             `json:"test_connections"`
}

// DeactivateTenantParams is the input of DeactivateTenantWorkflow.
type DeactivateTenantParams struct {
	TenantID string `json:"tenant_id"`
	Reason   string `json:"reason"`
}

// ReactivateTenantParams is the input of ReactivateTenantWorkflow.
type ReactivateTenantParams struct {
	TenantID string `json:"tenant_id"`
}

// SetTenantActiveParams flips a tenant's active flag at a given instant.
type SetTenantActiveParams struct {
	TenantID string    `json:"tenant_id"`
	Active   bool      `json:"active"`
	Reason   string    `json:"reason,omitempty"`
	At       time.Time `json:"at"`
}

// SetTenantUsersActiveParams cascades an active flag to a tenant's users.
type SetTenantUsersActiveParams struct {
	TenantID string `json:"tenant_id"`
	Active   bool   `json:"active"`
}

// SaveConnectionParams stores one connection record for a tenant.
type SaveConnectionParams struct {
	TenantID   string         `json:"tenant_id"`
	Connection ConnectionSpec `json:"connection"`
	At         time.Time      `json:"at"`
}

// DeleteConnectionParams removes a tenant's records of one kind.
type DeleteConnectionParams struct {
	TenantID string         `json:"tenant_id"`
	Kind     ConnectionKind `json:"kind"`
}

// InitializeContentParams seeds a tenant from a template set.
type InitializeContentParams struct {
	TenantID      string `json:"tenant_id"`
	TemplateSetID string `json:"template_set_id"`
}

// CreateAdminIdentityParams creates the tenant's admin user and role.
type CreateAdminIdentityParams struct {
	TenantID string    `json:"tenant_id"`
	Admin    AdminSpec `json:"admin"`
	At       time.Time `json:"at"`
}
