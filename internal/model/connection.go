package model

import (
	"fmt"
	"maps"
	"strings"
	"time"
)

// ConnectionKind is the closed set of tenant connection types.
type ConnectionKind string

const (
	ConnectionKindDatabase ConnectionKind = "database"
	ConnectionKindStorage  ConnectionKind = "storage"
)

// ConnectionKinds lists every kind in resolution order.
var ConnectionKinds = []ConnectionKind{ConnectionKindDatabase, ConnectionKindStorage}

// ParseConnectionKind parses a kind case-insensitively.
func ParseConnectionKind(s string) (ConnectionKind, error) {
	switch ConnectionKind(strings.ToLower(s)) {
	case ConnectionKindDatabase:
		return ConnectionKindDatabase, nil
	case ConnectionKindStorage:
		return ConnectionKindStorage, nil
	}
	return "", fmt.Errorf("unknown connection kind %q", s)
}

const (
	ProviderPostgres   = "postgres"
	ProviderS3         = "s3"
	ProviderFilesystem = "filesystem"
)

// ConnectionRecord is the persisted description of how to reach one tenant's
// database or storage. EncryptedCredential is always an encryption envelope.
type ConnectionRecord struct {
	ID                  string            `json:"id" db:"id"`
	TenantID            string            `json:"tenant_id" db:"tenant_id"`
	Kind                ConnectionKind    `json:"kind" db:"kind"`
	Provider            string            `json:"provider" db:"provider"`
	EncryptedCredential string            `json:"-" db:"encrypted_credential"`
	DatabaseName        *string           `json:"database_name,omitempty" db:"database_name"`
	ContainerName       *string           `json:"container_name,omitempty" db:"container_name"`
	Settings            map[string]string `json:"settings" db:"settings"`
	IsActive            bool              `json:"is_active" db:"is_active"`
	CreatedAt           time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at" db:"updated_at"`
}

func (r *ConnectionRecord) GetTenantID() string { return r.TenantID }

func (r *ConnectionRecord) SetTenantID(id string) { r.TenantID = id }

// ConnectionParams is a fully-populated, ready-to-use parameter set. It is a
// runtime value and never persisted.
type ConnectionParams struct {
	Kind                    ConnectionKind    `json:"kind"`
	Provider                string            `json:"provider"`
	ConnectionString        string            `json:"-"`
	Endpoint                string            `json:"endpoint,omitempty"`
	Region                  string            `json:"region,omitempty"`
	DatabaseName            string            `json:"database_name,omitempty"`
	ContainerName           string            `json:"container_name,omitempty"`
	PathPrefix              string            `json:"path_prefix,omitempty"`
	MaxPoolSize             int               `json:"max_pool_size,omitempty"`
	MinPoolSize             int               `json:"min_pool_size,omitempty"`
	ConnectTimeout          time.Duration     `json:"connect_timeout,omitempty"`
	CommandTimeout          time.Duration     `json:"command_timeout,omitempty"`
	MaxRetries              int               `json:"max_retries,omitempty"`
	RetryDelay              time.Duration     `json:"retry_delay,omitempty"`
	CircuitBreakerThreshold int               `json:"circuit_breaker_threshold,omitempty"`
	CircuitBreakerDuration  time.Duration     `json:"circuit_breaker_duration,omitempty"`
	Settings                map[string]string `json:"settings,omitempty"`
}

// Clone returns a deep copy.
func (p *ConnectionParams) Clone() *ConnectionParams {
	if p == nil {
		return nil
	}
	c := *p
	c.Settings = maps.Clone(p.Settings)
	return &c
}
