// Package vault stores tenant credentials in an external secret manager.
package vault

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/vault/api"
)

var (
	// ErrSecretNotFound is returned when a secret is absent or expired.
	ErrSecretNotFound = errors.New("secret not found")
	// ErrSecretExists is returned by a create-only write when the secret
	// already has a version.
	ErrSecretExists = errors.New("secret already exists")
)

// SecretOptions carries audit tags and an optional expiry for a written secret.
type SecretOptions struct {
	Tags      map[string]string
	ExpiresAt *time.Time
	// CreateOnly fails the write with ErrSecretExists unless the secret has
	// no version yet.
	CreateOnly bool
}

// SecretStore gets, sets and deletes secrets by name.
type SecretStore interface {
	GetSecret(ctx context.Context, name string) (string, error)
	SetSecret(ctx context.Context, name, value string, opts SecretOptions) error
	DeleteSecret(ctx context.Context, name string) error
}

const (
	valueKey     = "value"
	expiresAtKey = "expires_at"
)

var _ SecretStore = (*KVStore)(nil)

// KVStore is a SecretStore backed by a Vault KV version 2 engine.
type KVStore struct {
	Client *api.Client
	mount  string
	clock  clock.Clock
}

// Config may set up the vault client. Zero fields fall back to the standard
// vault environment variables.
type Config struct {
	Address       string
	Token         string
	Mount         string
	ClientTimeout time.Duration
	MaxRetries    int
}

func (c Config) assign(apiCFG *api.Config) {
	if c.Address != "" {
		apiCFG.Address = c.Address
	}
	if c.ClientTimeout > 0 {
		apiCFG.Timeout = c.ClientTimeout
	}
	if c.MaxRetries > 0 {
		apiCFG.MaxRetries = c.MaxRetries
	}
}

// NewKVStore creates a KVStore using the standard vault environment variables
// overlaid with cfg.
func NewKVStore(cfg Config) (*KVStore, error) {
	apiCFG := api.DefaultConfig()
	if apiCFG.Error != nil {
		return nil, apiCFG.Error
	}
	cfg.assign(apiCFG)

	c, err := api.NewClient(apiCFG)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	if cfg.Token != "" {
		c.SetToken(cfg.Token)
	}

	mount := cfg.Mount
	if mount == "" {
		mount = "secret"
	}
	return &KVStore{Client: c, mount: mount, clock: clock.New()}, nil
}

// GetSecret returns the latest version of a secret. Secrets written with an
// expiry that has passed are reported as ErrSecretNotFound.
func (s *KVStore) GetSecret(ctx context.Context, name string) (string, error) {
	secret, err := s.Client.KVv2(s.mount).Get(ctx, name)
	if err != nil {
		if errors.Is(err, api.ErrSecretNotFound) {
			return "", fmt.Errorf("get secret %s: %w", name, ErrSecretNotFound)
		}
		return "", fmt.Errorf("get secret %s: %w", name, err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("get secret %s: %w", name, ErrSecretNotFound)
	}

	if raw, ok := secret.Data[expiresAtKey].(string); ok && raw != "" {
		expiresAt, err := time.Parse(time.RFC3339, raw)
		if err == nil && !s.clock.Now().Before(expiresAt) {
			return "", fmt.Errorf("get secret %s: expired at %s: %w", name, raw, ErrSecretNotFound)
		}
	}

	value, ok := secret.Data[valueKey].(string)
	if !ok {
		return "", fmt.Errorf("get secret %s: %w", name, ErrSecretNotFound)
	}
	return value, nil
}

// SetSecret writes a new version of a secret and records its tags as custom
// metadata.
func (s *KVStore) SetSecret(ctx context.Context, name, value string, opts SecretOptions) error {
	data := map[string]interface{}{valueKey: value}
	if opts.ExpiresAt != nil {
		data[expiresAtKey] = opts.ExpiresAt.UTC().Format(time.RFC3339)
	}

	var putOpts []api.KVOption
	if opts.CreateOnly {
		putOpts = append(putOpts, api.WithCheckAndSet(0))
	}

	kv := s.Client.KVv2(s.mount)
	if _, err := kv.Put(ctx, name, data, putOpts...); err != nil {
		if opts.CreateOnly && isCASMismatch(err) {
			return fmt.Errorf("put secret %s: %w", name, ErrSecretExists)
		}
		return fmt.Errorf("put secret %s: %w", name, err)
	}

	if len(opts.Tags) == 0 && opts.ExpiresAt == nil {
		return nil
	}
	meta := api.KVMetadataPutInput{CustomMetadata: map[string]interface{}{}}
	for k, v := range opts.Tags {
		meta.CustomMetadata[k] = v
	}
	if opts.ExpiresAt != nil {
		meta.CustomMetadata[expiresAtKey] = data[expiresAtKey]
	}
	if err := kv.PutMetadata(ctx, name, meta); err != nil {
		return fmt.Errorf("put secret metadata %s: %w", name, err)
	}
	return nil
}

// DeleteSecret removes every version of a secret and its metadata. Deleting
// a missing secret succeeds.
func (s *KVStore) DeleteSecret(ctx context.Context, name string) error {
	if err := s.Client.KVv2(s.mount).DeleteMetadata(ctx, name); err != nil {
		return fmt.Errorf("delete secret %s: %w", name, err)
	}
	return nil
}

func isCASMismatch(err error) bool {
	var respErr *api.ResponseError
	if errors.As(err, &respErr) {
		for _, e := range respErr.Errors {
			if strings.Contains(e, "check-and-set") {
				return true
			}
		}
	}
	return strings.Contains(err.Error(), "check-and-set")
}
