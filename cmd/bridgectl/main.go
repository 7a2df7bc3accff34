// Command bridgectl is the operator-facing CLI: run code directly
// against the sandbox, call the run_python tool, inspect pool/catalog
// status, or run the stdio server in the foreground. Grounded on the
// teacher's cmd/scooter-cli/main.go thin-entrypoint idiom.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/mcp-bridge/codexec/internal/bridge"
	"github.com/mcp-bridge/codexec/internal/catalog"
	"github.com/mcp-bridge/codexec/internal/cli"
	"github.com/mcp-bridge/codexec/internal/config"
	"github.com/mcp-bridge/codexec/internal/logger"
	"github.com/mcp-bridge/codexec/internal/mcpclient"
	"github.com/mcp-bridge/codexec/internal/oauthutil"
	"github.com/mcp-bridge/codexec/internal/sandbox"
	"github.com/mcp-bridge/codexec/internal/secrets"
)

func main() {
	stateDir := envOrDefault("MCP_BRIDGE_STATE_DIR", ".mcp-bridge")
	os.MkdirAll(stateDir, 0o755)
	if err := logger.Init(stateDir); err == nil {
		defer logger.Close()
	}

	keychain := secrets.NewKeychain(stateDir)
	oauthHandler := oauthutil.NewHandler(keychain)
	resolver := secrets.NewResolver(keychain, oauthHandler)

	pool := mcpclient.NewPool(resolver)
	defer pool.CloseAll()

	cat := catalog.New()
	runner := sandbox.NewSandboxRunner(cliBackend())
	discovery := config.NewServerStore(envOrDefault("MCP_BRIDGE_SERVERS_FILE", "servers.yaml"))

	b := bridge.New(pool, cat, runner, discovery, stateDir)

	if err := cli.Execute(b); err != nil {
		fmt.Fprintln(os.Stderr, "bridgectl:", err)
		os.Exit(1)
	}
}

// cliBackend prefers the in-process goja interpreter so bridgectl run
// works on a laptop with no container runtime installed, falling back
// to the detected OCI runtime when MCP_BRIDGE_RUNTIME_BACKEND asks
// for it explicitly.
func cliBackend() sandbox.Backend {
	switch os.Getenv("MCP_BRIDGE_RUNTIME_BACKEND") {
	case "oci":
		binary, err := sandbox.DetectRuntime(os.Getenv("MCP_BRIDGE_RUNTIME"))
		if err != nil {
			fmt.Fprintln(os.Stderr, "bridgectl: no container runtime detected, falling back to goja:", err)
			return sandbox.GojaBackend{}
		}
		driver := sandbox.NewRuntimeDriver(binary, 5*time.Minute)
		return sandbox.NewOCIBackend(driver, sandbox.DefaultHardeningProfile())
	case "wasm":
		if modulePath := os.Getenv("MCP_BRIDGE_WASM_MODULE"); modulePath != "" {
			return sandbox.WASMBackend{ModulePath: modulePath}
		}
	}
	return sandbox.GojaBackend{}
}

func envOrDefault(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
