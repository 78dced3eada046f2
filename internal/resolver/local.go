package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/tenancy/internal/crypto"
	"github.com/edvin/tenancy/internal/model"
)

// Options tune probing and credential handling for a resolver.
type Options struct {
	Prober       Prober
	ProbeTimeout time.Duration
	// AllowPlaintext accepts stored credentials without an encryption
	// envelope. Development only.
	AllowPlaintext bool
}

var _ Resolver = (*LocalResolver)(nil)

// LocalResolver resolves connections from the tenant_connections registry,
// decrypting stored credentials with the local key.
type LocalResolver struct {
	records  RecordSource
	defaults Defaults
	key      []byte
	opts     Options
	probes   probeSet
	logger   zerolog.Logger
}

func NewLocalResolver(records RecordSource, defaults Defaults, key []byte, opts Options, logger zerolog.Logger) *LocalResolver {
	logger = logger.With().Str("component", "local-resolver").Logger()
	return &LocalResolver{
		records:  records,
		defaults: defaults,
		key:      key,
		opts:     opts,
		probes:   newProbeSet(opts.Prober, opts.ProbeTimeout, logger),
		logger:   logger,
	}
}

func (r *LocalResolver) GetDatabaseConnection(ctx context.Context, tenantID string) (*model.ConnectionParams, error) {
	rec, cred, err := r.lookup(ctx, tenantID, model.ConnectionKindDatabase)
	if err != nil {
		return nil, err
	}
	return databaseParams(r.defaults, tenantID, cred, rec)
}

func (r *LocalResolver) GetStorageConnection(ctx context.Context, tenantID string) (*model.ConnectionParams, error) {
	rec, cred, err := r.lookup(ctx, tenantID, model.ConnectionKindStorage)
	if err != nil {
		return nil, err
	}
	return storageParams(r.defaults, tenantID, cred, rec), nil
}

// RefreshConnections is a no-op: this resolver keeps no state.
func (r *LocalResolver) RefreshConnections(_ context.Context, tenantID string) {
	r.logger.Debug().Str("tenant_id", tenantID).Msg("refresh connections")
}

func (r *LocalResolver) TestConnection(ctx context.Context, tenantID string) map[model.ConnectionKind]bool {
	return r.probes.run(ctx, tenantID, map[model.ConnectionKind]getFunc{
		model.ConnectionKindDatabase: r.GetDatabaseConnection,
		model.ConnectionKindStorage:  r.GetStorageConnection,
	})
}

// lookup returns the tenant's record of a kind, if any, and its decrypted
// credential.
func (r *LocalResolver) lookup(ctx context.Context, tenantID string, kind model.ConnectionKind) (*model.ConnectionRecord, string, error) {
	rec, err := r.records.GetByTenantAndKind(ctx, tenantID, kind)
	if errors.Is(err, model.ErrNotFound) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("lookup %s connection for tenant %s: %w", kind, tenantID, err)
	}

	cred, err := crypto.DecryptString(rec.EncryptedCredential, r.key, r.opts.AllowPlaintext)
	if err != nil {
		r.logger.Error().Str("error", crypto.MaskSecrets(err.Error())).
			Str("tenant_id", tenantID).Str("kind", string(kind)).
			Msg("stored credential could not be decrypted")
		return nil, "", fmt.Errorf("decrypt %s credential for tenant %s: %w", kind, tenantID, err)
	}
	return rec, cred, nil
}
