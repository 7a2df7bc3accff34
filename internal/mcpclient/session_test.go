package mcpclient_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-bridge/codexec/internal/mcpclient"
)

// writeFakeServer drops a tiny shell script on disk that speaks just
// enough MCP to satisfy the initialize handshake, tools/list and
// tools/call, then returns its path.
func writeFakeServer(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake server script is POSIX shell only")
	}

	script := `#!/bin/sh
while IFS= read -r line; do
  case "$line" in
    *'"method":"initialize"'*)
      echo '{"jsonrpc":"2.0","id":1,"result":{"protocolVersion":"2024-11-05"}}'
      ;;
    *'"method":"tools/list"'*)
      echo '{"jsonrpc":"2.0","id":2,"result":{"tools":[{"name":"echo","description":"echoes input"}]}}'
      ;;
    *'"method":"tools/call"'*)
      echo '{"jsonrpc":"2.0","id":3,"result":{"content":[{"type":"text","text":"ok"}]}}'
      ;;
  esac
done
`
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-mcp-server.sh")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestStdioSession_StartListCallStop(t *testing.T) {
	path := writeFakeServer(t)
	spec := mcpclient.ServerSpec{Name: "fake", Command: "sh", Args: []string{path}}
	session := mcpclient.NewStdioSession(spec)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, session.Start(ctx))
	defer session.Stop()

	tools, err := session.ListTools(ctx)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "echo", tools[0].Name)

	resp, err := session.CallTool(ctx, "echo", map[string]interface{}{"text": "hi"})
	require.NoError(t, err)
	require.Nil(t, resp.Error)
	assert.NotNil(t, resp.Result)

	assert.NoError(t, session.Stop())
}

func TestStdioSession_ListToolsBeforeStartFails(t *testing.T) {
	session := mcpclient.NewStdioSession(mcpclient.ServerSpec{Name: "unstarted", Command: "sh"})
	_, err := session.ListTools(context.Background())
	assert.Error(t, err)
}
