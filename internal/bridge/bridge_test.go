package bridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-bridge/codexec/internal/catalog"
	"github.com/mcp-bridge/codexec/internal/mcpclient"
	"github.com/mcp-bridge/codexec/internal/sandbox"
)

type fakeDiscoverer struct {
	specs map[string]mcpclient.ServerSpec
}

func (f fakeDiscoverer) Discover(ctx context.Context) (map[string]mcpclient.ServerSpec, error) {
	return f.specs, nil
}

func newTestBridge(t *testing.T, specs map[string]mcpclient.ServerSpec) *Bridge {
	t.Helper()
	pool := mcpclient.NewPool(nil)
	cat := catalog.New()
	runner := sandbox.NewSandboxRunner(sandbox.GojaBackend{})
	return New(pool, cat, runner, fakeDiscoverer{specs: specs}, t.TempDir())
}

func TestBridge_RunPython_NoServersPrintsToStdout(t *testing.T) {
	b := newTestBridge(t, map[string]mcpclient.ServerSpec{})
	resp := b.RunPython(context.Background(), "print('hello')", nil, DefaultTimeout)
	assert.False(t, resp.IsError)
	assert.Contains(t, resp.Text, "hello")
}

func TestBridge_RunPython_UnconfiguredServerIsAnError(t *testing.T) {
	b := newTestBridge(t, map[string]mcpclient.ServerSpec{})
	resp := b.RunPython(context.Background(), "print('x')", []string{"missing"}, DefaultTimeout)
	assert.True(t, resp.IsError)
	assert.Contains(t, resp.Text, "not configured")
}

func TestBridge_RunPython_ClampsTimeoutAboveMax(t *testing.T) {
	assert.Equal(t, MaxTimeout, clampTimeout(MaxTimeout+1000))
	assert.Equal(t, 1, clampTimeout(0))
	assert.Equal(t, 1, clampTimeout(-5))
}

func TestParseCallToolArgs_MissingCodeIsValidationError(t *testing.T) {
	_, err := ParseCallToolArgs(map[string]interface{}{})
	require.Error(t, err)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestParseCallToolArgs_ServersMustBeList(t *testing.T) {
	_, err := ParseCallToolArgs(map[string]interface{}{"code": "print(1)", "servers": "not-a-list"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be a list")
}

func TestParseCallToolArgs_ValidArgumentsClampTimeout(t *testing.T) {
	args, err := ParseCallToolArgs(map[string]interface{}{
		"code":    "print(1)",
		"servers": []interface{}{"fs", "fs"},
		"timeout": float64(999999),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"fs", "fs"}, args.Servers)
	assert.Equal(t, MaxTimeout, args.Timeout)
}

func TestParseCallToolArgs_FractionalTimeoutIsValidationError(t *testing.T) {
	_, err := ParseCallToolArgs(map[string]interface{}{
		"code":    "print(1)",
		"timeout": 2.5,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be an integer")
}

func TestUnknownToolResponse_IsAnError(t *testing.T) {
	resp := UnknownToolResponse("other_tool")
	assert.True(t, resp.IsError)
	assert.Contains(t, resp.Text, "Unknown tool")
}
