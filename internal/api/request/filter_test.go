package request

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTenantList_Defaults(t *testing.T) {
	r := httptest.NewRequest("GET", "/tenants", nil)
	p := ParseTenantList(r)
	assert.Equal(t, DefaultLimit, p.Limit)
	assert.Empty(t, p.Cursor)
	assert.Empty(t, p.Search)
	assert.Nil(t, p.Active)
}

func TestParseTenantList_AllParams(t *testing.T) {
	r := httptest.NewRequest("GET", "/tenants?limit=25&cursor=abc123&search=acme&status=active", nil)
	p := ParseTenantList(r)
	assert.Equal(t, 25, p.Limit)
	assert.Equal(t, "abc123", p.Cursor)
	assert.Equal(t, "acme", p.Search)
	require.NotNil(t, p.Active)
	assert.True(t, *p.Active)
}

func TestParseTenantList_Inactive(t *testing.T) {
	r := httptest.NewRequest("GET", "/tenants?status=inactive", nil)
	p := ParseTenantList(r)
	require.NotNil(t, p.Active)
	assert.False(t, *p.Active)
}

func TestParseTenantList_UnknownStatusIgnored(t *testing.T) {
	r := httptest.NewRequest("GET", "/tenants?status=suspended", nil)
	assert.Nil(t, ParseTenantList(r).Active)
}

func TestParseTenantList_LimitClamped(t *testing.T) {
	r := httptest.NewRequest("GET", "/tenants?limit=500", nil)
	assert.Equal(t, MaxLimit, ParseTenantList(r).Limit)
}
