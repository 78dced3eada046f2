package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ProviderLocal = "local"
	ProviderVault = "vault"
)

type Config struct {
	ServiceName     string
	CoreDatabaseURL string
	HTTPListenAddr  string
	MetricsAddr     string
	LogLevel        string

	TemporalAddress       string
	TemporalTLSCert       string
	TemporalTLSKey        string
	TemporalTLSCACert     string
	TemporalTLSServerName string

	// Tenancy.
	MultiTenancyEnabled     bool
	GlobalTenantID          string
	GlobalTenantName        string
	AutoCreateGlobalTenant  bool
	RequireExplicitTenant   bool
	ValidateTenantExistence bool
	TenantIDClaim           string
	TenantNameClaim         string
	UserIDClaim             string
	RolesClaim              string
	TenantHeader            string
	AllowTenantHeaderSwitch bool
	JWTSecret               string

	// Connection resolution.
	ConnectionProvider        string
	LocalEncryptionKey        string
	AllowPlaintextCredentials bool
	VaultAddress              string
	VaultToken                string
	VaultMount                string
	VaultSecretPrefix         string
	ProbeTimeout              time.Duration
	Defaults                  ConnectionDefaults

	// Caching.
	CacheDuration        time.Duration
	CacheMaxEntries      int
	CacheSummaryInterval time.Duration

	AuditLogRetentionDays int

	// Health.
	HealthSampleSize         int
	HealthUnhealthyThreshold int
	HealthConcurrency        int
}

// ConnectionDefaults are the system-wide parameters a tenant inherits when it
// has no connection record of its own. They can be overridden from a YAML file.
type ConnectionDefaults struct {
	Database DatabaseDefaults `yaml:"database"`
	Storage  StorageDefaults  `yaml:"storage"`
}

type DatabaseDefaults struct {
	Provider                string `yaml:"provider"`
	URL                     string `yaml:"url"`
	Name                    string `yaml:"name"`
	MaxPoolSize             int    `yaml:"max_pool_size"`
	MinPoolSize             int    `yaml:"min_pool_size"`
	ConnectTimeoutSeconds   int    `yaml:"connect_timeout_seconds"`
	CommandTimeoutSeconds   int    `yaml:"command_timeout_seconds"`
	MaxRetries              int    `yaml:"max_retries"`
	RetryDelayMS            int    `yaml:"retry_delay_ms"`
	CircuitBreakerThreshold int    `yaml:"circuit_breaker_threshold"`
	CircuitBreakerSeconds   int    `yaml:"circuit_breaker_seconds"`
}

type StorageDefaults struct {
	Provider   string `yaml:"provider"`
	Endpoint   string `yaml:"endpoint"`
	Region     string `yaml:"region"`
	Container  string `yaml:"container"`
	Root       string `yaml:"root"`
	Credential string `yaml:"credential"`
	MaxRetries int    `yaml:"max_retries"`
}

func Load() (*Config, error) {
	cfg := &Config{
		ServiceName:     getEnv("SERVICE_NAME", "tenancy"),
		CoreDatabaseURL: getEnv("CORE_DATABASE_URL", ""),
		HTTPListenAddr:  getEnv("HTTP_LISTEN_ADDR", ":8090"),
		MetricsAddr:     getEnv("METRICS_ADDR", ""),
		LogLevel:        getEnv("LOG_LEVEL", "info"),

		TemporalAddress:       getEnv("TEMPORAL_ADDRESS", "localhost:7233"),
		TemporalTLSCert:       getEnv("TEMPORAL_TLS_CERT", ""),
		TemporalTLSKey:        getEnv("TEMPORAL_TLS_KEY", ""),
		TemporalTLSCACert:     getEnv("TEMPORAL_TLS_CA_CERT", ""),
		TemporalTLSServerName: getEnv("TEMPORAL_TLS_SERVER_NAME", ""),

		MultiTenancyEnabled:     getEnvBool("MULTI_TENANCY_ENABLED", true),
		GlobalTenantID:          getEnv("GLOBAL_TENANT_ID", "00000000-0000-0000-0000-000000000001"),
		GlobalTenantName:        getEnv("GLOBAL_TENANT_NAME", "Global"),
		AutoCreateGlobalTenant:  getEnvBool("AUTO_CREATE_GLOBAL_TENANT", true),
		RequireExplicitTenant:   getEnvBool("REQUIRE_EXPLICIT_TENANT", false),
		ValidateTenantExistence: getEnvBool("VALIDATE_TENANT_EXISTENCE", true),
		TenantIDClaim:           getEnv("TENANT_ID_CLAIM", "tenant_id"),
		TenantNameClaim:         getEnv("TENANT_NAME_CLAIM", "tenant_name"),
		UserIDClaim:             getEnv("USER_ID_CLAIM", "sub"),
		RolesClaim:              getEnv("ROLES_CLAIM", "roles"),
		TenantHeader:            getEnv("TENANT_HEADER", "X-Tenant-ID"),
		AllowTenantHeaderSwitch: getEnvBool("ALLOW_TENANT_HEADER_SWITCH", false),
		JWTSecret:               getEnv("JWT_SECRET", ""),

		ConnectionProvider:        strings.ToLower(getEnv("CONNECTION_PROVIDER", ProviderLocal)),
		LocalEncryptionKey:        getEnv("LOCAL_ENCRYPTION_KEY", ""),
		AllowPlaintextCredentials: getEnvBool("ALLOW_PLAINTEXT_CREDENTIALS", false),
		VaultAddress:              getEnv("VAULT_ADDR", ""),
		VaultToken:                getEnv("VAULT_TOKEN", ""),
		VaultMount:                getEnv("VAULT_MOUNT", "secret"),
		VaultSecretPrefix:         getEnv("VAULT_SECRET_PREFIX", "tenancy"),
		ProbeTimeout:              time.Duration(getEnvInt("PROBE_TIMEOUT_SECONDS", 5)) * time.Second,

		CacheDuration:        time.Duration(getEnvInt("CACHE_DURATION_MINUTES", 30)) * time.Minute,
		CacheMaxEntries:      getEnvInt("CACHE_MAX_ENTRIES", 1024),
		CacheSummaryInterval: time.Duration(getEnvInt("CACHE_SUMMARY_INTERVAL_MINUTES", 15)) * time.Minute,

		AuditLogRetentionDays: getEnvInt("AUDIT_LOG_RETENTION_DAYS", 90),

		HealthSampleSize:         getEnvInt("HEALTH_SAMPLE_SIZE", 50),
		HealthUnhealthyThreshold: getEnvInt("HEALTH_UNHEALTHY_THRESHOLD", 5),
		HealthConcurrency:        getEnvInt("HEALTH_CONCURRENCY", 10),

		Defaults: ConnectionDefaults{
			Database: DatabaseDefaults{
				Provider:                "postgres",
				URL:                     getEnv("DEFAULT_DATABASE_URL", ""),
				Name:                    getEnv("DEFAULT_DATABASE_NAME", "tenancy"),
				MaxPoolSize:             100,
				MinPoolSize:             0,
				ConnectTimeoutSeconds:   15,
				CommandTimeoutSeconds:   30,
				MaxRetries:              3,
				RetryDelayMS:            200,
				CircuitBreakerThreshold: 5,
				CircuitBreakerSeconds:   30,
			},
			Storage: StorageDefaults{
				Provider:   getEnv("DEFAULT_STORAGE_PROVIDER", "filesystem"),
				Endpoint:   getEnv("DEFAULT_STORAGE_ENDPOINT", ""),
				Region:     getEnv("DEFAULT_STORAGE_REGION", "us-east-1"),
				Container:  getEnv("DEFAULT_STORAGE_CONTAINER", "tenant-data"),
				Root:       getEnv("DEFAULT_STORAGE_ROOT", "/var/lib/tenancy/storage"),
				Credential: getEnv("DEFAULT_STORAGE_CREDENTIAL", ""),
				MaxRetries: 3,
			},
		},
	}

	if path := getEnv("DEFAULTS_FILE", ""); path != "" {
		if err := cfg.loadDefaultsFile(path); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// loadDefaultsFile overlays non-zero values from a YAML file onto the
// environment-derived connection defaults.
func (c *Config) loadDefaultsFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read defaults file: %w", err)
	}
	var file ConnectionDefaults
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse defaults file: %w", err)
	}

	db := &c.Defaults.Database
	overlayString(&db.Provider, file.Database.Provider)
	overlayString(&db.URL, file.Database.URL)
	overlayString(&db.Name, file.Database.Name)
	overlayInt(&db.MaxPoolSize, file.Database.MaxPoolSize)
	overlayInt(&db.MinPoolSize, file.Database.MinPoolSize)
	overlayInt(&db.ConnectTimeoutSeconds, file.Database.ConnectTimeoutSeconds)
	overlayInt(&db.CommandTimeoutSeconds, file.Database.CommandTimeoutSeconds)
	overlayInt(&db.MaxRetries, file.Database.MaxRetries)
	overlayInt(&db.RetryDelayMS, file.Database.RetryDelayMS)
	overlayInt(&db.CircuitBreakerThreshold, file.Database.CircuitBreakerThreshold)
	overlayInt(&db.CircuitBreakerSeconds, file.Database.CircuitBreakerSeconds)

	st := &c.Defaults.Storage
	overlayString(&st.Provider, file.Storage.Provider)
	overlayString(&st.Endpoint, file.Storage.Endpoint)
	overlayString(&st.Region, file.Storage.Region)
	overlayString(&st.Container, file.Storage.Container)
	overlayString(&st.Root, file.Storage.Root)
	overlayString(&st.Credential, file.Storage.Credential)
	overlayInt(&st.MaxRetries, file.Storage.MaxRetries)
	return nil
}

// Validate checks that the settings required by the named binary are present.
func (c *Config) Validate(service string) error {
	var missing []string
	if c.CoreDatabaseURL == "" {
		missing = append(missing, "CORE_DATABASE_URL")
	}
	if service == "tenancy-api" && c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.ConnectionProvider == ProviderVault && c.VaultAddress == "" {
		missing = append(missing, "VAULT_ADDR")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration for %s: %s", service, strings.Join(missing, ", "))
	}

	if (c.TemporalTLSCert == "") != (c.TemporalTLSKey == "") {
		return fmt.Errorf("TEMPORAL_TLS_CERT and TEMPORAL_TLS_KEY must both be set")
	}
	switch c.ConnectionProvider {
	case ProviderLocal, ProviderVault:
	default:
		return fmt.Errorf("unknown CONNECTION_PROVIDER %q", c.ConnectionProvider)
	}
	if !c.MultiTenancyEnabled && c.GlobalTenantID == "" {
		return fmt.Errorf("GLOBAL_TENANT_ID is required when multi-tenancy is disabled")
	}
	if c.HealthConcurrency < 1 {
		return fmt.Errorf("HEALTH_CONCURRENCY must be at least 1")
	}
	return nil
}

// TemporalTLS builds a *tls.Config from the Temporal TLS fields.
// Returns nil, nil if no cert/key is configured (plaintext mode).
func (c *Config) TemporalTLS() (*tls.Config, error) {
	if c.TemporalTLSCert == "" && c.TemporalTLSKey == "" {
		return nil, nil
	}

	cert, err := tls.LoadX509KeyPair(c.TemporalTLSCert, c.TemporalTLSKey)
	if err != nil {
		return nil, fmt.Errorf("load temporal client cert: %w", err)
	}
	tlsConfig := &tls.Config{Certificates: []tls.Certificate{cert}}

	if c.TemporalTLSCACert != "" {
		caPEM, err := os.ReadFile(c.TemporalTLSCACert)
		if err != nil {
			return nil, fmt.Errorf("read temporal CA cert: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("failed to parse temporal CA cert")
		}
		tlsConfig.RootCAs = pool
	}
	if c.TemporalTLSServerName != "" {
		tlsConfig.ServerName = c.TemporalTLSServerName
	}
	return tlsConfig, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func overlayString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func overlayInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}
