package mcpclient_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-bridge/codexec/internal/mcpclient"
)

type fakeResolver struct {
	calls int
	env   map[string]string
}

func (f *fakeResolver) Resolve(ctx context.Context, spec mcpclient.ServerSpec) (map[string]string, error) {
	f.calls++
	return f.env, nil
}

func TestPool_OpenIsIdempotent(t *testing.T) {
	path := writeFakeServer(t)
	pool := mcpclient.NewPool(nil)
	spec := mcpclient.ServerSpec{Name: "fake", Command: "sh", Args: []string{path}}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	first, err := pool.Open(ctx, spec)
	require.NoError(t, err)

	second, err := pool.Open(ctx, spec)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, []string{"fake"}, pool.Names())

	require.NoError(t, pool.Close("fake"))
	assert.Empty(t, pool.Names())
}

func TestPool_OpenInjectsResolvedCredentials(t *testing.T) {
	path := writeFakeServer(t)
	resolver := &fakeResolver{env: map[string]string{"API_KEY": "secret"}}
	pool := mcpclient.NewPool(resolver)
	spec := mcpclient.ServerSpec{
		Name:    "fake",
		Command: "sh",
		Args:    []string{path},
		Auth:    &mcpclient.AuthSpec{Type: mcpclient.AuthAPIKey, EnvVar: "API_KEY"},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := pool.Open(ctx, spec)
	require.NoError(t, err)
	assert.Equal(t, 1, resolver.calls)

	defer pool.CloseAll()
}

func TestPool_CloseAllClearsEverything(t *testing.T) {
	pathA := writeFakeServer(t)
	pathB := writeFakeServer(t)
	pool := mcpclient.NewPool(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := pool.Open(ctx, mcpclient.ServerSpec{Name: "a", Command: "sh", Args: []string{pathA}})
	require.NoError(t, err)
	_, err = pool.Open(ctx, mcpclient.ServerSpec{Name: "b", Command: "sh", Args: []string{pathB}})
	require.NoError(t, err)

	assert.Len(t, pool.Names(), 2)
	pool.CloseAll()
	assert.Empty(t, pool.Names())
}
