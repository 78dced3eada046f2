package resolver

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/edvin/tenancy/internal/config"
	"github.com/edvin/tenancy/internal/crypto"
	"github.com/edvin/tenancy/internal/vault"
)

// Stack is the uncached resolver selected by configuration together with the
// key that encrypts stored credentials.
type Stack struct {
	Resolver Resolver
	Key      []byte
	// Vault is set when credentials live in the secret store.
	Vault *VaultResolver
}

// NewStack builds the resolver named by cfg.ConnectionProvider. The vault
// variant loads the local encryption key from the store; the local variant
// takes it from LOCAL_ENCRYPTION_KEY.
func NewStack(ctx context.Context, cfg *config.Config, records RecordSource, logger zerolog.Logger) (*Stack, error) {
	defaults := DefaultsFromConfig(cfg.Defaults)
	opts := Options{
		Prober:         NewMultiProber(),
		ProbeTimeout:   cfg.ProbeTimeout,
		AllowPlaintext: cfg.AllowPlaintextCredentials,
	}

	switch cfg.ConnectionProvider {
	case config.ProviderVault:
		store, err := vault.NewKVStore(vault.Config{
			Address: cfg.VaultAddress,
			Token:   cfg.VaultToken,
			Mount:   cfg.VaultMount,
		})
		if err != nil {
			return nil, err
		}
		vr, err := NewVaultResolver(ctx, store, records, defaults, cfg.VaultSecretPrefix, opts, logger)
		if err != nil {
			return nil, fmt.Errorf("init vault resolver: %w", err)
		}
		return &Stack{Resolver: vr, Key: vr.LocalKey(), Vault: vr}, nil

	case config.ProviderLocal:
		if cfg.LocalEncryptionKey == "" {
			return nil, fmt.Errorf("LOCAL_ENCRYPTION_KEY is required for the local connection provider")
		}
		key, err := crypto.DecodeKey(cfg.LocalEncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("LOCAL_ENCRYPTION_KEY: %w", err)
		}
		return &Stack{Resolver: NewLocalResolver(records, defaults, key, opts, logger), Key: key}, nil
	}
	return nil, fmt.Errorf("unknown connection provider %q", cfg.ConnectionProvider)
}
