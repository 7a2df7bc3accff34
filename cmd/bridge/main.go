// Command bridge runs the code-execution MCP server over stdio,
// wiring config discovery, secrets, oauth, the downstream pool and
// tool catalog, and one of the three sandbox backends together into a
// single Bridge, grounded on the teacher's cmd/scooter/main.go daemon
// bootstrap.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/mcp-bridge/codexec/internal/bridge"
	"github.com/mcp-bridge/codexec/internal/catalog"
	"github.com/mcp-bridge/codexec/internal/config"
	"github.com/mcp-bridge/codexec/internal/logger"
	"github.com/mcp-bridge/codexec/internal/mcpclient"
	"github.com/mcp-bridge/codexec/internal/oauthutil"
	"github.com/mcp-bridge/codexec/internal/sandbox"
	"github.com/mcp-bridge/codexec/internal/secrets"
	"github.com/mcp-bridge/codexec/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "bridge:", err)
		os.Exit(1)
	}
}

func run() error {
	stateDir := envOrDefault("MCP_BRIDGE_STATE_DIR", ".mcp-bridge")
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	if err := logger.Init(stateDir); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	keychain := secrets.NewKeychain(stateDir)
	oauthHandler := oauthutil.NewHandler(keychain)
	resolver := secrets.NewResolver(keychain, oauthHandler)

	pool := mcpclient.NewPool(resolver)
	defer pool.CloseAll()

	cat := catalog.New()

	backend, err := selectBackend()
	if err != nil {
		return fmt.Errorf("select sandbox backend: %w", err)
	}
	runner := sandbox.NewSandboxRunner(backend)

	discovery := config.NewServerStore(envOrDefault("MCP_BRIDGE_SERVERS_FILE", "servers.yaml"))

	b := bridge.New(pool, cat, runner, discovery, stateDir)

	logger.AddLog("INFO", "bridge starting, serving stdio")
	srv := server.New(b)
	return srv.Serve(os.Stdin, os.Stdout)
}

// selectBackend picks the sandbox Backend via MCP_BRIDGE_RUNTIME_BACKEND
// ("oci", "goja" or "goja-local", "wasm"), defaulting to oci and falling
// back to the first runtime binary DetectRuntime finds. Grounded on
// RuntimeDriver's own podman/docker preference order.
func selectBackend() (sandbox.Backend, error) {
	switch envOrDefault("MCP_BRIDGE_RUNTIME_BACKEND", "oci") {
	case "goja", string(sandbox.BackendGojaLocal):
		return sandbox.GojaBackend{}, nil
	case "wasm":
		modulePath := os.Getenv("MCP_BRIDGE_WASM_MODULE")
		if modulePath == "" {
			return nil, fmt.Errorf("MCP_BRIDGE_WASM_MODULE required for the wasm backend")
		}
		return sandbox.WASMBackend{ModulePath: modulePath}, nil
	default:
		binary, err := sandbox.DetectRuntime(os.Getenv("MCP_BRIDGE_RUNTIME"))
		if err != nil {
			return nil, err
		}
		driver := sandbox.NewRuntimeDriver(binary, 5*time.Minute)
		return sandbox.NewOCIBackend(driver, sandbox.DefaultHardeningProfile()), nil
	}
}

func envOrDefault(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
