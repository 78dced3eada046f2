package resolver

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/edvin/tenancy/internal/model"
	"github.com/edvin/tenancy/internal/platform"
)

// tenantQualified derives a per-tenant name from a default one.
func tenantQualified(defaultName, tenantID string) string {
	return defaultName + "_" + platform.CompactID(tenantID)
}

// databaseParams merges a tenant's record and credential over the database
// defaults. rec may be nil, in which case the defaults are used with a
// tenant-qualified database name. An empty credential keeps the default URL.
func databaseParams(defaults Defaults, tenantID, credential string, rec *model.ConnectionRecord) (*model.ConnectionParams, error) {
	p := defaults.Database.Clone()
	p.Kind = model.ConnectionKindDatabase
	p.DatabaseName = tenantQualified(defaults.Database.DatabaseName, tenantID)

	if rec != nil {
		if rec.Provider != "" {
			p.Provider = rec.Provider
		}
		if rec.DatabaseName != nil && *rec.DatabaseName != "" {
			p.DatabaseName = *rec.DatabaseName
		}
		applySettings(p, rec.Settings)
	}
	if credential != "" {
		p.ConnectionString = credential
	}
	if p.ConnectionString == "" {
		return nil, fmt.Errorf("database connection for tenant %s: %w", tenantID, model.ErrConnectionNotConfigured)
	}

	dsn, err := withDatabase(p.ConnectionString, p.DatabaseName)
	if err != nil {
		return nil, err
	}
	p.ConnectionString = dsn
	return p, nil
}

// storageParams merges a tenant's record and credential over the storage
// defaults. With no record the tenant gets a tenant-qualified path inside the
// default container.
func storageParams(defaults Defaults, tenantID, credential string, rec *model.ConnectionRecord) *model.ConnectionParams {
	p := defaults.Storage.Clone()
	p.Kind = model.ConnectionKindStorage
	p.PathPrefix = tenantQualified(defaults.Storage.ContainerName, tenantID)

	if rec != nil && rec.Provider != "" && rec.Provider != p.Provider {
		p.Provider = rec.Provider
		p.Endpoint = ""
		if p.Provider == model.ProviderFilesystem {
			p.Endpoint = defaults.StorageRoot
		}
	}
	if credential != "" {
		p.ConnectionString = credential
		if ep := parseCredential(credential)["endpoint"]; ep != "" {
			p.Endpoint = ep
		}
	}
	if rec != nil {
		if rec.ContainerName != nil && *rec.ContainerName != "" {
			p.ContainerName = *rec.ContainerName
		}
		applySettings(p, rec.Settings)
	}
	return p
}

// filesystemFallback is the storage used when a tenant has no stored
// credential at all.
func filesystemFallback(defaults Defaults, tenantID string) *model.ConnectionParams {
	p := defaults.Storage.Clone()
	p.Kind = model.ConnectionKindStorage
	p.Provider = model.ProviderFilesystem
	p.ConnectionString = ""
	p.Endpoint = defaults.StorageRoot
	p.Region = ""
	p.PathPrefix = tenantQualified(defaults.Storage.ContainerName, tenantID)
	return p
}

// applySettings overrides parameters from a record's extra settings. Only
// recognised keys are applied; values that do not coerce are skipped.
func applySettings(p *model.ConnectionParams, settings map[string]string) {
	for k, v := range settings {
		switch strings.ToLower(k) {
		case "max_pool_size":
			setInt(&p.MaxPoolSize, v)
		case "min_pool_size":
			setInt(&p.MinPoolSize, v)
		case "max_retries":
			setInt(&p.MaxRetries, v)
		case "circuit_breaker_threshold":
			setInt(&p.CircuitBreakerThreshold, v)
		case "connect_timeout_seconds":
			setDuration(&p.ConnectTimeout, v, time.Second)
		case "command_timeout_seconds":
			setDuration(&p.CommandTimeout, v, time.Second)
		case "retry_delay_ms":
			setDuration(&p.RetryDelay, v, time.Millisecond)
		case "circuit_breaker_seconds":
			setDuration(&p.CircuitBreakerDuration, v, time.Second)
		case "endpoint":
			p.Endpoint = v
		case "region":
			p.Region = v
		case "container":
			p.ContainerName = v
		case "path_prefix":
			p.PathPrefix = v
		default:
			continue
		}
		if p.Settings == nil {
			p.Settings = map[string]string{}
		}
		p.Settings[k] = v
	}
}

func setInt(dst *int, v string) {
	if n, err := cast.ToIntE(strings.TrimSpace(v)); err == nil && n >= 0 {
		*dst = n
	}
}

func setDuration(dst *time.Duration, v string, unit time.Duration) {
	if n, err := cast.ToInt64E(strings.TrimSpace(v)); err == nil && n >= 0 {
		*dst = time.Duration(n) * unit
	}
}

// withDatabase points a postgres connection string at the named database.
// Both URL and keyword/value forms are supported.
func withDatabase(dsn, name string) (string, error) {
	if name == "" {
		return dsn, nil
	}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			// url.Error quotes the raw DSN, password included.
			var uerr *url.Error
			if errors.As(err, &uerr) {
				err = uerr.Err
			}
			return "", fmt.Errorf("parse database url: %w", err)
		}
		u.Path = "/" + name
		return u.String(), nil
	}

	fields := strings.Fields(dsn)
	out := fields[:0]
	for _, f := range fields {
		if !strings.HasPrefix(f, "dbname=") {
			out = append(out, f)
		}
	}
	out = append(out, "dbname="+name)
	return strings.Join(out, " "), nil
}

// parseCredential splits a "key=value;key=value" credential. Keys are
// lowercased.
func parseCredential(s string) map[string]string {
	out := map[string]string{}
	for _, part := range strings.Split(s, ";") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		out[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return out
}
