package resolver

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/tenancy/internal/crypto"
	"github.com/edvin/tenancy/internal/model"
	"github.com/edvin/tenancy/internal/vault"
)

var _ Resolver = (*VaultResolver)(nil)

// VaultResolver resolves credentials from a secret store. The registry
// record, when present, only contributes naming and extra settings.
type VaultResolver struct {
	store    vault.SecretStore
	records  RecordSource
	defaults Defaults
	prefix   string
	localKey []byte
	probes   probeSet
	logger   zerolog.Logger
	now      func() time.Time
}

// NewVaultResolver fetches the local encryption key from the store, creating
// it on first start.
func NewVaultResolver(ctx context.Context, store vault.SecretStore, records RecordSource, defaults Defaults, prefix string, opts Options, logger zerolog.Logger) (*VaultResolver, error) {
	logger = logger.With().Str("component", "vault-resolver").Logger()
	r := &VaultResolver{
		store:    store,
		records:  records,
		defaults: defaults,
		prefix:   prefix,
		probes:   newProbeSet(opts.Prober, opts.ProbeTimeout, logger),
		logger:   logger,
		now:      time.Now,
	}

	key, err := r.loadOrCreateLocalKey(ctx)
	if err != nil {
		return nil, err
	}
	r.localKey = key
	return r, nil
}

// SecretName is the deterministic store name of a tenant credential.
func (r *VaultResolver) SecretName(tenantID string, kind model.ConnectionKind) string {
	return fmt.Sprintf("%s-%s-%s", r.prefix, tenantID, kind)
}

// LocalKeyName is the store name of the local encryption key.
func (r *VaultResolver) LocalKeyName() string {
	return r.prefix + "-local-encryption-key"
}

// LocalKey returns the key used to encrypt credentials held locally.
func (r *VaultResolver) LocalKey() []byte {
	return r.localKey
}

func (r *VaultResolver) GetDatabaseConnection(ctx context.Context, tenantID string) (*model.ConnectionParams, error) {
	secret, err := r.secret(ctx, tenantID, model.ConnectionKindDatabase)
	if errors.Is(err, vault.ErrSecretNotFound) {
		return nil, fmt.Errorf("database connection for tenant %s: %w", tenantID, model.ErrConnectionNotConfigured)
	}
	if err != nil {
		return nil, err
	}

	rec, err := r.record(ctx, tenantID, model.ConnectionKindDatabase)
	if err != nil {
		return nil, err
	}
	return databaseParams(r.defaults, tenantID, secret, rec)
}

// GetStorageConnection falls back to filesystem storage when the tenant has
// no stored credential.
func (r *VaultResolver) GetStorageConnection(ctx context.Context, tenantID string) (*model.ConnectionParams, error) {
	secret, err := r.secret(ctx, tenantID, model.ConnectionKindStorage)
	if errors.Is(err, vault.ErrSecretNotFound) {
		r.logger.Debug().Str("tenant_id", tenantID).Msg("no storage secret, using filesystem storage")
		return filesystemFallback(r.defaults, tenantID), nil
	}
	if err != nil {
		return nil, err
	}

	rec, err := r.record(ctx, tenantID, model.ConnectionKindStorage)
	if err != nil {
		return nil, err
	}
	return storageParams(r.defaults, tenantID, secret, rec), nil
}

// RefreshConnections is a no-op: secrets are read through on every call.
func (r *VaultResolver) RefreshConnections(_ context.Context, tenantID string) {
	r.logger.Debug().Str("tenant_id", tenantID).Msg("refresh connections")
}

func (r *VaultResolver) TestConnection(ctx context.Context, tenantID string) map[model.ConnectionKind]bool {
	return r.probes.run(ctx, tenantID, map[model.ConnectionKind]getFunc{
		model.ConnectionKindDatabase: r.GetDatabaseConnection,
		model.ConnectionKindStorage:  r.GetStorageConnection,
	})
}

// SaveConnection stores a tenant credential, tagged for audit.
func (r *VaultResolver) SaveConnection(ctx context.Context, tenantID string, kind model.ConnectionKind, secret string, expiresAt *time.Time) error {
	tags := map[string]string{
		"tenant_id":  tenantID,
		"kind":       string(kind),
		"created_at": r.now().UTC().Format(time.RFC3339),
	}
	if expiresAt != nil {
		tags["expires_at"] = expiresAt.UTC().Format(time.RFC3339)
	}

	name := r.SecretName(tenantID, kind)
	if err := r.store.SetSecret(ctx, name, secret, vault.SecretOptions{Tags: tags, ExpiresAt: expiresAt}); err != nil {
		return fmt.Errorf("save %s secret for tenant %s: %w", kind, tenantID, err)
	}
	r.logger.Info().Str("tenant_id", tenantID).Str("kind", string(kind)).Str("secret", name).Msg("connection secret saved")
	return nil
}

// DeleteConnection removes a tenant credential from the store.
func (r *VaultResolver) DeleteConnection(ctx context.Context, tenantID string, kind model.ConnectionKind) error {
	name := r.SecretName(tenantID, kind)
	if err := r.store.DeleteSecret(ctx, name); err != nil {
		return fmt.Errorf("delete %s secret for tenant %s: %w", kind, tenantID, err)
	}
	r.logger.Info().Str("tenant_id", tenantID).Str("kind", string(kind)).Str("secret", name).Msg("connection secret deleted")
	return nil
}

func (r *VaultResolver) secret(ctx context.Context, tenantID string, kind model.ConnectionKind) (string, error) {
	secret, err := r.store.GetSecret(ctx, r.SecretName(tenantID, kind))
	if err != nil {
		if errors.Is(err, vault.ErrSecretNotFound) {
			return "", err
		}
		return "", fmt.Errorf("fetch %s secret for tenant %s: %w", kind, tenantID, err)
	}
	return secret, nil
}

func (r *VaultResolver) record(ctx context.Context, tenantID string, kind model.ConnectionKind) (*model.ConnectionRecord, error) {
	if r.records == nil {
		return nil, nil
	}
	rec, err := r.records.GetByTenantAndKind(ctx, tenantID, kind)
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %s connection for tenant %s: %w", kind, tenantID, err)
	}
	return rec, nil
}

// loadOrCreateLocalKey returns the shared local key. Every process starting
// against an empty store races to create it; the write is create-only so the
// losers adopt the winner's key.
func (r *VaultResolver) loadOrCreateLocalKey(ctx context.Context) ([]byte, error) {
	name := r.LocalKeyName()
	key, err := r.fetchLocalKey(ctx, name)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, vault.ErrSecretNotFound) {
		return nil, err
	}

	key, err = crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	err = r.store.SetSecret(ctx, name, hex.EncodeToString(key), vault.SecretOptions{
		Tags:       map[string]string{"purpose": "local-encryption", "created_at": r.now().UTC().Format(time.RFC3339)},
		CreateOnly: true,
	})
	if errors.Is(err, vault.ErrSecretExists) {
		r.logger.Info().Str("secret", name).Msg("local encryption key created concurrently, using stored key")
		return r.fetchLocalKey(ctx, name)
	}
	if err != nil {
		return nil, fmt.Errorf("store local encryption key: %w", err)
	}
	r.logger.Info().Str("secret", name).Msg("created local encryption key")
	return key, nil
}

func (r *VaultResolver) fetchLocalKey(ctx context.Context, name string) ([]byte, error) {
	encoded, err := r.store.GetSecret(ctx, name)
	if errors.Is(err, vault.ErrSecretNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("fetch local encryption key: %w", err)
	}
	key, err := hex.DecodeString(encoded)
	if err != nil || len(key) != crypto.KeySize {
		return nil, fmt.Errorf("local encryption key %s is malformed", name)
	}
	return key, nil
}
