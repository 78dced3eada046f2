package vault

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// kvServer emulates the subset of the Vault KV v2 HTTP API the store uses.
type kvServer struct {
	mu       sync.Mutex
	data     map[string]map[string]any
	metadata map[string]map[string]any
}

func newKVServer() *kvServer {
	return &kvServer{data: map[string]map[string]any{}, metadata: map[string]map[string]any{}}
}

func (s *kvServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasPrefix(r.URL.Path, "/v1/secret/data/"):
		name := strings.TrimPrefix(r.URL.Path, "/v1/secret/data/")
		switch r.Method {
		case http.MethodGet:
			d, ok := s.data[name]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"errors":[]}`))
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{
				"data": d,
				"metadata": map[string]any{
					"created_time":    "2026-01-01T00:00:00Z",
					"deletion_time":   "",
					"destroyed":       false,
					"version":         1,
					"custom_metadata": s.metadata[name],
				},
			}})
		case http.MethodPut, http.MethodPost:
			var body struct {
				Data    map[string]any `json:"data"`
				Options map[string]any `json:"options"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			if cas, ok := body.Options["cas"].(float64); ok && cas == 0 {
				if _, exists := s.data[name]; exists {
					w.WriteHeader(http.StatusBadRequest)
					_, _ = w.Write([]byte(`{"errors":["check-and-set parameter did not match the current version"]}`))
					return
				}
			}
			s.data[name] = body.Data
			_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{
				"created_time":  "2026-01-01T00:00:00Z",
				"deletion_time": "",
				"destroyed":     false,
				"version":       1,
			}})
		}
	case strings.HasPrefix(r.URL.Path, "/v1/secret/metadata/"):
		name := strings.TrimPrefix(r.URL.Path, "/v1/secret/metadata/")
		if r.Method == http.MethodDelete {
			delete(s.data, name)
			delete(s.metadata, name)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		var body struct {
			CustomMetadata map[string]any `json:"custom_metadata"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		s.metadata[name] = body.CustomMetadata
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestStore(t *testing.T) (*KVStore, *kvServer, *clock.Mock) {
	t.Helper()
	backend := newKVServer()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	store, err := NewKVStore(Config{Address: srv.URL, Token: "test-token", MaxRetries: 1})
	require.NoError(t, err)
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	store.clock = mock
	return store, backend, mock
}

func TestKVStore_SetAndGet(t *testing.T) {
	store, backend, _ := newTestStore(t)
	ctx := context.Background()

	err := store.SetSecret(ctx, "tenancy-t1-database", "postgres://u:p@db/t1", SecretOptions{
		Tags: map[string]string{"tenant_id": "t1", "kind": "database"},
	})
	require.NoError(t, err)

	got, err := store.GetSecret(ctx, "tenancy-t1-database")
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@db/t1", got)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Equal(t, "t1", backend.metadata["tenancy-t1-database"]["tenant_id"])
	assert.Equal(t, "database", backend.metadata["tenancy-t1-database"]["kind"])
}

func TestKVStore_GetMissing(t *testing.T) {
	store, _, _ := newTestStore(t)

	_, err := store.GetSecret(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSecretNotFound)
}

func TestKVStore_ExpiredSecretIsAbsent(t *testing.T) {
	store, _, mock := newTestStore(t)
	ctx := context.Background()
	expires := mock.Now().Add(time.Hour)

	require.NoError(t, store.SetSecret(ctx, "s", "v", SecretOptions{ExpiresAt: &expires}))

	got, err := store.GetSecret(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	mock.Add(2 * time.Hour)
	_, err = store.GetSecret(ctx, "s")
	assert.ErrorIs(t, err, ErrSecretNotFound)
}

func TestKVStore_CreateOnly(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetSecret(ctx, "key", "first", SecretOptions{CreateOnly: true}))

	err := store.SetSecret(ctx, "key", "second", SecretOptions{CreateOnly: true})
	assert.ErrorIs(t, err, ErrSecretExists)

	got, err := store.GetSecret(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, "first", got)

	require.NoError(t, store.SetSecret(ctx, "key", "third", SecretOptions{}))
	got, err = store.GetSecret(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, "third", got)
}

func TestKVStore_DeleteSecret(t *testing.T) {
	store, backend, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetSecret(ctx, "tenancy-t1-database", "dsn", SecretOptions{
		Tags: map[string]string{"tenant_id": "t1"},
	}))
	require.NoError(t, store.DeleteSecret(ctx, "tenancy-t1-database"))

	_, err := store.GetSecret(ctx, "tenancy-t1-database")
	assert.ErrorIs(t, err, ErrSecretNotFound)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.NotContains(t, backend.metadata, "tenancy-t1-database")
}
