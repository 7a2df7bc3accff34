package oauthutil_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-bridge/codexec/internal/mcpclient"
	"github.com/mcp-bridge/codexec/internal/oauthutil"
)

type memStore struct{ values map[string]string }

func newMemStore() *memStore { return &memStore{values: map[string]string{}} }

func (m *memStore) Get(id string) (string, bool, error) {
	v, ok := m.values[id]
	return v, ok, nil
}
func (m *memStore) Set(id, value string) error { m.values[id] = value; return nil }

func TestHandler_Token_RejectsNonOAuthSpec(t *testing.T) {
	h := oauthutil.NewHandler(newMemStore())
	_, err := h.Token(context.Background(), mcpclient.ServerSpec{Name: "fs"})
	assert.Error(t, err)
}

func TestHandler_Token_RefreshesCachedExpiredGrant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "fresh-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	defer srv.Close()

	store := newMemStore()
	spec := mcpclient.ServerSpec{
		Name: "gh",
		Auth: &mcpclient.AuthSpec{
			Type:     mcpclient.AuthOAuth2,
			AuthURL:  srv.URL + "/authorize",
			TokenURL: srv.URL + "/token",
		},
	}

	grant := map[string]interface{}{
		"access_token":  "stale-token",
		"refresh_token": "refresh-abc",
		"expiry":        time.Now().Add(-time.Hour),
	}
	data, _ := json.Marshal(grant)
	require.NoError(t, store.Set("gh:oauth_grant", string(data)))

	h := oauthutil.NewHandler(store)
	token, err := h.Token(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", token)

	cached, ok, err := store.Get("gh:oauth_grant")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, cached, "fresh-token")
}
