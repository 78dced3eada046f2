package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTenant_DeactivateReactivate(t *testing.T) {
	tenant := &Tenant{ID: "t1", IsActive: true}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tenant.Deactivate(at, "billing")
	assert.False(t, tenant.IsActive)
	require.NotNil(t, tenant.DeactivatedAt)
	assert.Equal(t, at, *tenant.DeactivatedAt)
	assert.Equal(t, "billing", *tenant.DeactivationReason)

	later := at.Add(time.Hour)
	tenant.Reactivate(later)
	assert.True(t, tenant.IsActive)
	assert.Nil(t, tenant.DeactivatedAt)
	assert.Nil(t, tenant.DeactivationReason)
	assert.Equal(t, later, *tenant.ReactivatedAt)
}

func TestParseConnectionKind(t *testing.T) {
	k, err := ParseConnectionKind("Database")
	require.NoError(t, err)
	assert.Equal(t, ConnectionKindDatabase, k)

	k, err = ParseConnectionKind("storage")
	require.NoError(t, err)
	assert.Equal(t, ConnectionKindStorage, k)

	_, err = ParseConnectionKind("queue")
	assert.Error(t, err)
}

func TestConnectionParams_CloneIsDeep(t *testing.T) {
	p := &ConnectionParams{DatabaseName: "db", Settings: map[string]string{"a": "1"}}
	c := p.Clone()
	c.Settings["a"] = "2"
	c.DatabaseName = "other"

	assert.Equal(t, "1", p.Settings["a"])
	assert.Equal(t, "db", p.DatabaseName)

	var nilParams *ConnectionParams
	assert.Nil(t, nilParams.Clone())
}

func TestTenantResult(t *testing.T) {
	assert.True(t, TenantResult{Tenant: &Tenant{}}.Succeeded())

	r := Fail(FailureDuplicateName, "taken")
	assert.False(t, r.Succeeded())
	assert.Equal(t, "duplicate_name: taken", r.Failure.Error())
}
