package activity

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.temporal.io/sdk/temporal"

	"github.com/edvin/tenancy/internal/core"
	"github.com/edvin/tenancy/internal/crypto"
	"github.com/edvin/tenancy/internal/model"
	"github.com/edvin/tenancy/internal/platform"
)

// ConnectionTester runs live probes against a tenant's connections.
type ConnectionTester interface {
	TestConnection(ctx context.Context, tenantID string) map[model.ConnectionKind]bool
}

// TenantLifecycle contains the activities behind the tenant lifecycle
// workflows. Each activity is one registry step and is safe to retry.
type TenantLifecycle struct {
	svc     *core.Services
	key     []byte
	tester  ConnectionTester
	secrets core.SecretSaver
	logger  zerolog.Logger
}

// NewTenantLifecycle creates the activity struct. secrets may be nil when
// credentials live only in the registry.
func NewTenantLifecycle(svc *core.Services, key []byte, tester ConnectionTester, secrets core.SecretSaver, logger zerolog.Logger) *TenantLifecycle {
	return &TenantLifecycle{
		svc:     svc,
		key:     key,
		tester:  tester,
		secrets: secrets,
		logger:  logger.With().Str("component", "tenant-activities").Logger(),
	}
}

// CreateTenantRecord inserts the tenant row. A name collision is not retried.
func (a *TenantLifecycle) CreateTenantRecord(ctx context.Context, tenant model.Tenant) error {
	err := a.svc.Tenant.Create(ctx, &tenant)
	if errors.Is(err, model.ErrDuplicateName) {
		return temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("tenant name %q already exists", tenant.Name), model.ErrTypeDuplicateName, err)
	}
	return err
}

// DeleteTenantRecord removes the tenant row. Deleting a missing row succeeds,
// so compensation can be replayed.
func (a *TenantLifecycle) DeleteTenantRecord(ctx context.Context, tenantID string) error {
	return a.svc.Tenant.Delete(ctx, tenantID)
}

// GetTenantByID loads a tenant. A missing tenant is not retried.
func (a *TenantLifecycle) GetTenantByID(ctx context.Context, tenantID string) (*model.Tenant, error) {
	t, err := a.svc.Tenant.GetByID(ctx, tenantID)
	if errors.Is(err, model.ErrNotFound) {
		return nil, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("tenant %s not found", tenantID), model.ErrTypeNotFound, err)
	}
	return t, err
}

// SaveConnectionRecord upserts a connection record. When a secret store is
// configured the decrypted credential is pushed to it as well.
func (a *TenantLifecycle) SaveConnectionRecord(ctx context.Context, params model.SaveConnectionParams) error {
	rec := core.RecordFromSpec(params.TenantID, params.Connection, params.At)
	if err := a.svc.Connection.Upsert(ctx, rec); err != nil {
		return err
	}

	if a.secrets == nil || params.Connection.EncryptedCredential == "" {
		return nil
	}
	plain, err := crypto.Decrypt(params.Connection.EncryptedCredential, a.key)
	if err != nil {
		return temporal.NewNonRetryableApplicationError("decrypt connection credential", model.ErrTypeDecryption, err)
	}
	if err := a.secrets.SaveConnection(ctx, params.TenantID, params.Connection.Kind, string(plain), nil); err != nil {
		return fmt.Errorf("save %s secret: %w", params.Connection.Kind, err)
	}
	return nil
}

// DeleteConnectionRecord removes a tenant's connection records of one kind
// and, when a secret store is configured, the matching secret.
func (a *TenantLifecycle) DeleteConnectionRecord(ctx context.Context, params model.DeleteConnectionParams) error {
	if err := a.svc.Connection.Delete(ctx, params.TenantID, params.Kind); err != nil {
		return err
	}
	if a.secrets == nil {
		return nil
	}
	if err := a.secrets.DeleteConnection(ctx, params.TenantID, params.Kind); err != nil {
		return fmt.Errorf("delete %s secret: %w", params.Kind, err)
	}
	return nil
}

// InitializeTenantContent seeds tenant content from a template set and
// returns the number of items created.
func (a *TenantLifecycle) InitializeTenantContent(ctx context.Context, params model.InitializeContentParams) (int64, error) {
	n, err := a.svc.Content.InitializeTenant(ctx, params.TenantID, params.TemplateSetID)
	if err != nil {
		return 0, err
	}
	a.logger.Info().Str("tenant_id", params.TenantID).Str("template_set", params.TemplateSetID).Int64("items", n).Msg("tenant content initialized")
	return n, nil
}

func (a *TenantLifecycle) RemoveTenantContent(ctx context.Context, tenantID string) error {
	return a.svc.Content.RemoveTenant(ctx, tenantID)
}

// CreateAdminIdentity creates the tenant's admin user, creating the
// tenant-admin role on first use, and returns the user id.
func (a *TenantLifecycle) CreateAdminIdentity(ctx context.Context, params model.CreateAdminIdentityParams) (string, error) {
	role, err := a.svc.Role.GetOrCreate(ctx, params.TenantID, model.RoleTenantAdmin)
	if err != nil {
		return "", err
	}

	userID, err := a.svc.User.Create(ctx, &model.User{
		ID:           platform.NewID(),
		TenantID:     params.TenantID,
		Email:        params.Admin.Email,
		DisplayName:  params.Admin.DisplayName,
		PasswordHash: params.Admin.PasswordHash,
		IsActive:     true,
		CreatedAt:    params.At,
		UpdatedAt:    params.At,
	})
	if err != nil {
		return "", err
	}

	if err := a.svc.Role.Assign(ctx, userID, role.ID); err != nil {
		return "", err
	}
	return userID, nil
}

// DeleteAdminIdentity removes a user created by CreateAdminIdentity.
func (a *TenantLifecycle) DeleteAdminIdentity(ctx context.Context, userID string) error {
	return a.svc.User.Delete(ctx, userID)
}

// TestTenantConnections probes every connection kind of a tenant.
func (a *TenantLifecycle) TestTenantConnections(ctx context.Context, tenantID string) (map[model.ConnectionKind]bool, error) {
	results := a.tester.TestConnection(ctx, tenantID)
	for kind, ok := range results {
		if !ok {
			a.logger.Warn().Str("tenant_id", tenantID).Str("kind", string(kind)).Msg("connection test failed")
		}
	}
	return results, nil
}

// SetTenantActive flips the tenant's active flag.
func (a *TenantLifecycle) SetTenantActive(ctx context.Context, params model.SetTenantActiveParams) error {
	var err error
	if params.Active {
		err = a.svc.Tenant.Reactivate(ctx, params.TenantID, params.At)
	} else {
		err = a.svc.Tenant.Deactivate(ctx, params.TenantID, params.Reason, params.At)
	}
	if errors.Is(err, model.ErrNotFound) {
		return temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("tenant %s not found", params.TenantID), model.ErrTypeNotFound, err)
	}
	return err
}

// SetTenantUsersActive cascades the active flag to every user of the tenant
// and returns how many users changed.
func (a *TenantLifecycle) SetTenantUsersActive(ctx context.Context, params model.SetTenantUsersActiveParams) (int64, error) {
	n, err := a.svc.User.SetActiveByTenant(ctx, params.TenantID, params.Active)
	if err != nil {
		return 0, err
	}
	a.logger.Info().Str("tenant_id", params.TenantID).Bool("active", params.Active).Int64("users", n).Msg("tenant users updated")
	return n, nil
}
