package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edvin/tenancy/internal/crypto"
	"github.com/edvin/tenancy/internal/model"
)

// TenantPoolConfig turns resolved tenant database parameters into a pgxpool
// config. The connection string must already be decrypted.
func TenantPoolConfig(params *model.ConnectionParams) (*pgxpool.Config, error) {
	if params == nil || params.ConnectionString == "" {
		return nil, fmt.Errorf("tenant db config: %w", model.ErrConnectionNotConfigured)
	}

	cfg, err := pgxpool.ParseConfig(params.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("parse tenant db config %s: %w", crypto.MaskSecrets(params.ConnectionString), err)
	}
	if params.DatabaseName != "" {
		cfg.ConnConfig.Database = params.DatabaseName
	}
	if params.MaxPoolSize > 0 {
		cfg.MaxConns = int32(params.MaxPoolSize)
	}
	if params.MinPoolSize > 0 && params.MinPoolSize <= int(cfg.MaxConns) {
		cfg.MinConns = int32(params.MinPoolSize)
	}
	if params.ConnectTimeout > 0 {
		cfg.ConnConfig.ConnectTimeout = params.ConnectTimeout
	}
	return cfg, nil
}

// NewTenantPool opens a pool against a tenant's database.
func NewTenantPool(ctx context.Context, params *model.ConnectionParams) (*pgxpool.Pool, error) {
	cfg, err := TenantPoolConfig(params)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create tenant db pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping tenant db %s: %w", params.DatabaseName, err)
	}

	return pool, nil
}
