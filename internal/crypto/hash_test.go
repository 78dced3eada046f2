package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash(t *testing.T) {
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", Hash("hello"))
	assert.Equal(t, Hash("a"), Hash("a"))
	assert.NotEqual(t, Hash("a"), Hash("b"))
}

func TestConstantTimeEquals(t *testing.T) {
	assert.True(t, ConstantTimeEquals("abc", "abc"))
	assert.False(t, ConstantTimeEquals("abc", "abd"))
	assert.False(t, ConstantTimeEquals("abc", "abcd"))
}

func TestPasswordHash(t *testing.T) {
	h, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", h)
	assert.True(t, CheckPassword(h, "correct horse"))
	assert.False(t, CheckPassword(h, "battery staple"))
}

func TestMaskSecrets(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Host=db;Database=app;Password=hunter2;", "Host=db;Database=app;Password=***;"},
		{"host=db user=app password=hunter2 dbname=x", "host=db user=app password=*** dbname=x"},
		{"postgres://app:hunter2@db:5432/app", "postgres://app:***@db:5432/app"},
		{"endpoint=http://s3;access_key=AK;secret_key=SK", "endpoint=http://s3;access_key=***;secret_key=***"},
		{"AccountName=x;AccountKey=abc==;", "AccountName=x;AccountKey=***;"},
		{"token=abc&x=1", "token=***&x=1"},
		{"nothing to hide", "nothing to hide"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MaskSecrets(tt.in), tt.in)
	}
}
