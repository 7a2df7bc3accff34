package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-bridge/codexec/internal/bridge"
	"github.com/mcp-bridge/codexec/internal/catalog"
	"github.com/mcp-bridge/codexec/internal/mcpclient"
	"github.com/mcp-bridge/codexec/internal/sandbox"
	"github.com/mcp-bridge/codexec/internal/server"
)

type fakeDiscoverer struct{}

func (fakeDiscoverer) Discover(ctx context.Context) (map[string]mcpclient.ServerSpec, error) {
	return map[string]mcpclient.ServerSpec{}, nil
}

func newTestServer(t *testing.T) *server.Server {
	t.Helper()
	pool := mcpclient.NewPool(nil)
	cat := catalog.New()
	runner := sandbox.NewSandboxRunner(sandbox.GojaBackend{})
	b := bridge.New(pool, cat, runner, fakeDiscoverer{}, t.TempDir())
	return server.New(b)
}

func readResponses(t *testing.T, out *bytes.Buffer, n int) []map[string]interface{} {
	t.Helper()
	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, n)
	results := make([]map[string]interface{}, n)
	for i, line := range lines {
		require.NoError(t, json.Unmarshal([]byte(line), &results[i]))
	}
	return results
}

func TestServer_InitializeAndToolsList(t *testing.T) {
	s := newTestServer(t)
	in := strings.NewReader(
		`{"jsonrpc":"2.0","id":1,"method":"initialize"}` + "\n" +
			`{"jsonrpc":"2.0","method":"notifications/initialized"}` + "\n" +
			`{"jsonrpc":"2.0","id":2,"method":"tools/list"}` + "\n",
	)
	var out bytes.Buffer
	require.NoError(t, s.Serve(in, &out))

	resps := readResponses(t, &out, 2)
	assert.EqualValues(t, 1, resps[0]["id"])
	assert.EqualValues(t, 2, resps[1]["id"])

	result := resps[1]["result"].(map[string]interface{})
	tools := result["tools"].([]interface{})
	require.Len(t, tools, 1)
	assert.Equal(t, "run_python", tools[0].(map[string]interface{})["name"])
}

func TestServer_ToolsCall_RunPythonSuccess(t *testing.T) {
	s := newTestServer(t)
	req := `{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"run_python","arguments":{"code":"print('hi')"}}}` + "\n"
	var out bytes.Buffer
	require.NoError(t, s.Serve(strings.NewReader(req), &out))

	resps := readResponses(t, &out, 1)
	result := resps[0]["result"].(map[string]interface{})
	assert.False(t, result["isError"].(bool))
	content := result["content"].([]interface{})[0].(map[string]interface{})
	assert.Contains(t, content["text"], "hi")
}

func TestServer_ToolsCall_UnknownToolIsAnError(t *testing.T) {
	s := newTestServer(t)
	req := `{"jsonrpc":"2.0","id":6,"method":"tools/call","params":{"name":"other","arguments":{}}}` + "\n"
	var out bytes.Buffer
	require.NoError(t, s.Serve(strings.NewReader(req), &out))

	resps := readResponses(t, &out, 1)
	result := resps[0]["result"].(map[string]interface{})
	assert.True(t, result["isError"].(bool))
}

func TestServer_ToolsCall_MissingCodeIsValidationError(t *testing.T) {
	s := newTestServer(t)
	req := `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"run_python","arguments":{}}}` + "\n"
	var out bytes.Buffer
	require.NoError(t, s.Serve(strings.NewReader(req), &out))

	resps := readResponses(t, &out, 1)
	result := resps[0]["result"].(map[string]interface{})
	assert.True(t, result["isError"].(bool))
}

func TestServer_ResourcesReadReturnsCapabilityText(t *testing.T) {
	s := newTestServer(t)
	req := `{"jsonrpc":"2.0","id":8,"method":"resources/read","params":{"uri":"resource://mcp-bridge/capabilities"}}` + "\n"
	var out bytes.Buffer
	require.NoError(t, s.Serve(strings.NewReader(req), &out))

	resps := readResponses(t, &out, 1)
	result := resps[0]["result"].(map[string]interface{})
	contents := result["contents"].([]interface{})[0].(map[string]interface{})
	assert.Contains(t, contents["text"], "sandbox")
}

func TestServer_UnknownMethodReturnsMethodNotFound(t *testing.T) {
	s := newTestServer(t)
	req := `{"jsonrpc":"2.0","id":9,"method":"frobnicate"}` + "\n"
	var out bytes.Buffer
	require.NoError(t, s.Serve(strings.NewReader(req), &out))

	resps := readResponses(t, &out, 1)
	errObj := resps[0]["error"].(map[string]interface{})
	assert.EqualValues(t, mcpclient.MethodNotFound, errObj["code"])
}
