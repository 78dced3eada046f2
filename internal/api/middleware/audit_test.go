package middleware

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractResource_SimplePath(t *testing.T) {
	resType, resID := extractResource("/api/v1/tenants")
	assert.NotNil(t, resType)
	assert.Equal(t, "tenants", *resType)
	assert.Nil(t, resID)
}

func TestExtractResource_WithID(t *testing.T) {
	resType, resID := extractResource("/api/v1/tenants/abc-123")
	assert.NotNil(t, resType)
	assert.Equal(t, "tenants", *resType)
	assert.NotNil(t, resID)
	assert.Equal(t, "abc-123", *resID)
}

func TestExtractResource_Nested(t *testing.T) {
	resType, resID := extractResource("/api/v1/tenants/abc/connections/storage")
	assert.NotNil(t, resType)
	assert.Equal(t, "connections", *resType)
	assert.NotNil(t, resID)
	assert.Equal(t, "storage", *resID)
}

func TestExtractResource_NestedNoID(t *testing.T) {
	resType, resID := extractResource("/api/v1/tenants/abc/deactivate")
	assert.NotNil(t, resType)
	assert.Equal(t, "deactivate", *resType)
	assert.Nil(t, resID)
}

func TestSanitizeBody(t *testing.T) {
	body := []byte(`{"name":"acme","admin":{"email":"a@acme.test","password":"hunter22"},"database":{"provider":"postgres","credential":"user=u password=p"}}`)
	sanitized := sanitizeBody(body)

	var result map[string]any
	require.NoError(t, json.Unmarshal(sanitized, &result))
	assert.Equal(t, "acme", result["name"])
	admin := result["admin"].(map[string]any)
	assert.Equal(t, "a@acme.test", admin["email"])
	assert.Equal(t, "[REDACTED]", admin["password"])
	db := result["database"].(map[string]any)
	assert.Equal(t, "postgres", db["provider"])
	assert.Equal(t, "[REDACTED]", db["credential"])
}

func TestSanitizeBody_NotAnObject(t *testing.T) {
	body := []byte(`["a","b"]`)
	assert.Equal(t, json.RawMessage(body), sanitizeBody(body))
}

type recordingExecer struct {
	mu    sync.Mutex
	calls [][]any
}

func (e *recordingExecer) Exec(_ context.Context, _ string, arguments ...any) (pgconn.CommandTag, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, arguments)
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func TestAuditLogger_RecordsMutations(t *testing.T) {
	db := &recordingExecer{}
	al := NewAuditLogger(db, zerolog.Nop())

	handler := al.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "hunter22")
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest("POST", "/api/v1/tenants", strings.NewReader(`{"name":"acme","password":"hunter22"}`))
	handler.ServeHTTP(httptest.NewRecorder(), req)
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/v1/tenants", nil))
	al.Close()

	require.Len(t, db.calls, 1)
	args := db.calls[0]
	assert.Equal(t, "POST", args[2])
	assert.Equal(t, "/api/v1/tenants", args[3])
	assert.Equal(t, http.StatusAccepted, args[6])
	assert.NotContains(t, string(args[7].(json.RawMessage)), "hunter22")
}
