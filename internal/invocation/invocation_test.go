package invocation_test

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-bridge/codexec/internal/catalog"
	"github.com/mcp-bridge/codexec/internal/invocation"
	"github.com/mcp-bridge/codexec/internal/mcpclient"
)

func setupPoolAndCatalog(t *testing.T) (*mcpclient.Pool, *catalog.Catalog) {
	t.Helper()
	pool := mcpclient.NewPool(nil)
	cat := catalog.New()
	_, err := cat.Ensure("stub", "/srv/stub", func() ([]mcpclient.RawTool, error) {
		return []mcpclient.RawTool{{Name: "echo", Description: "echoes input"}}, nil
	})
	require.NoError(t, err)
	return pool, cat
}

func TestInvocation_EnterRequiresLoadedServer(t *testing.T) {
	pool, cat := setupPoolAndCatalog(t)
	deps := invocation.Deps{
		Pool:           pool,
		Catalog:        cat,
		AllServerNames: func() []string { return []string{"stub"} },
		StateDir:       t.TempDir(),
	}

	_, err := invocation.Enter(deps, []string{"stub"})
	assert.Error(t, err, "stub was catalogued but never opened in the pool")
}

func TestInvocation_HandleRPC_RejectsServerOutsideAllowedSet(t *testing.T) {
	pool, cat := setupPoolAndCatalog(t)
	deps := invocation.Deps{
		Pool:           pool,
		Catalog:        cat,
		AllServerNames: func() []string { return []string{} },
		StateDir:       t.TempDir(),
	}
	inv := invocationWithNoEntry(t, deps)

	payload, _ := json.Marshal(map[string]interface{}{"type": "call_tool", "server": "stub", "tool": "echo"})
	success, _, errMsg := inv.HandleRPC(payload)
	assert.False(t, success)
	assert.Contains(t, errMsg, "not available")
}

func TestInvocation_HandleRPC_UnknownTypeRejected(t *testing.T) {
	pool, cat := setupPoolAndCatalog(t)
	deps := invocation.Deps{
		Pool:           pool,
		Catalog:        cat,
		AllServerNames: func() []string { return []string{} },
		StateDir:       t.TempDir(),
	}
	inv := invocationWithNoEntry(t, deps)

	payload, _ := json.Marshal(map[string]interface{}{"type": "frobnicate"})
	success, _, errMsg := inv.HandleRPC(payload)
	assert.False(t, success)
	assert.Contains(t, errMsg, "Unknown RPC type")
}

func TestInvocation_ExitRemovesIPCDir(t *testing.T) {
	pool, cat := setupPoolAndCatalog(t)
	stateDir := t.TempDir()
	deps := invocation.Deps{
		Pool:           pool,
		Catalog:        cat,
		AllServerNames: func() []string { return []string{} },
		StateDir:       stateDir,
	}

	inv, err := invocation.Enter(deps, nil)
	require.NoError(t, err)
	assert.DirExists(t, inv.IPCDir)

	require.NoError(t, inv.Exit())
	_, statErr := os.Stat(inv.IPCDir)
	assert.True(t, os.IsNotExist(statErr))
}

// invocationWithNoEntry is a tiny helper constructing a zero-server
// Invocation without going through Enter's pool/catalog requirements,
// for tests exercising HandleRPC's validation paths in isolation.
func invocationWithNoEntry(t *testing.T, deps invocation.Deps) invocation.Invocation {
	t.Helper()
	inv, err := invocation.Enter(deps, nil)
	require.NoError(t, err)
	return *inv
}
