// Package resolver turns a tenant id into ready-to-use database and storage
// connection parameters.
package resolver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/edvin/tenancy/internal/config"
	"github.com/edvin/tenancy/internal/crypto"
	"github.com/edvin/tenancy/internal/metrics"
	"github.com/edvin/tenancy/internal/model"
)

// DefaultProbeTimeout bounds each liveness probe run by TestConnection.
const DefaultProbeTimeout = 5 * time.Second

// Resolver resolves per-tenant connection parameters.
//
// RefreshConnections never fails and is safe to call for tenants with no
// cached state. TestConnection never fails either: a kind that cannot be
// resolved or probed reports false.
type Resolver interface {
	GetDatabaseConnection(ctx context.Context, tenantID string) (*model.ConnectionParams, error)
	GetStorageConnection(ctx context.Context, tenantID string) (*model.ConnectionParams, error)
	RefreshConnections(ctx context.Context, tenantID string)
	TestConnection(ctx context.Context, tenantID string) map[model.ConnectionKind]bool
}

// RecordSource looks up a tenant's persisted connection record. It returns
// model.ErrNotFound when the tenant has none of the requested kind.
type RecordSource interface {
	GetByTenantAndKind(ctx context.Context, tenantID string, kind model.ConnectionKind) (*model.ConnectionRecord, error)
}

// Defaults are the system-wide parameters tenants inherit.
type Defaults struct {
	Database    model.ConnectionParams
	Storage     model.ConnectionParams
	StorageRoot string
}

// DefaultsFromConfig converts configured defaults into parameter templates.
func DefaultsFromConfig(cfg config.ConnectionDefaults) Defaults {
	db := cfg.Database
	st := cfg.Storage

	storage := model.ConnectionParams{
		Kind:             model.ConnectionKindStorage,
		Provider:         st.Provider,
		ConnectionString: st.Credential,
		Endpoint:         st.Endpoint,
		Region:           st.Region,
		ContainerName:    st.Container,
		MaxRetries:       st.MaxRetries,
	}
	if st.Provider == model.ProviderFilesystem && st.Endpoint == "" {
		storage.Endpoint = st.Root
	}

	return Defaults{
		Database: model.ConnectionParams{
			Kind:                    model.ConnectionKindDatabase,
			Provider:                db.Provider,
			ConnectionString:        db.URL,
			DatabaseName:            db.Name,
			MaxPoolSize:             db.MaxPoolSize,
			MinPoolSize:             db.MinPoolSize,
			ConnectTimeout:          time.Duration(db.ConnectTimeoutSeconds) * time.Second,
			CommandTimeout:          time.Duration(db.CommandTimeoutSeconds) * time.Second,
			MaxRetries:              db.MaxRetries,
			RetryDelay:              time.Duration(db.RetryDelayMS) * time.Millisecond,
			CircuitBreakerThreshold: db.CircuitBreakerThreshold,
			CircuitBreakerDuration:  time.Duration(db.CircuitBreakerSeconds) * time.Second,
		},
		Storage:     storage,
		StorageRoot: st.Root,
	}
}

// probeSet runs liveness probes for the kinds a resolver serves.
type probeSet struct {
	prober  Prober
	timeout time.Duration
	logger  zerolog.Logger
}

func newProbeSet(prober Prober, timeout time.Duration, logger zerolog.Logger) probeSet {
	if prober == nil {
		prober = NewMultiProber()
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return probeSet{prober: prober, timeout: timeout, logger: logger}
}

type getFunc func(ctx context.Context, tenantID string) (*model.ConnectionParams, error)

// run resolves and probes every kind concurrently, each under its own
// timeout. Failures are logged and reported as false.
func (p probeSet) run(ctx context.Context, tenantID string, getters map[model.ConnectionKind]getFunc) map[model.ConnectionKind]bool {
	results := make(map[model.ConnectionKind]bool, len(getters))
	var mu sync.Mutex
	var g errgroup.Group

	for kind, get := range getters {
		g.Go(func() error {
			err := p.probeOne(ctx, tenantID, get)
			ok := err == nil
			if !ok {
				p.logger.Warn().Str("error", crypto.MaskSecrets(err.Error())).
					Str("tenant_id", tenantID).Str("kind", string(kind)).
					Msg("connection probe failed")
			}
			metrics.ConnectionProbes.WithLabelValues(string(kind), metrics.ProbeResult(ok)).Inc()

			mu.Lock()
			results[kind] = ok
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (p probeSet) probeOne(ctx context.Context, tenantID string, get getFunc) error {
	pctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params, err := get(pctx, tenantID)
	if err != nil {
		return fmt.Errorf("resolve: %w", err)
	}
	if err := p.prober.Probe(pctx, params); err != nil {
		return fmt.Errorf("probe %s: %w", params.Provider, err)
	}
	return nil
}
