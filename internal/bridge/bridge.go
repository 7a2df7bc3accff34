package bridge

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/mcp-bridge/codexec/internal/catalog"
	"github.com/mcp-bridge/codexec/internal/invocation"
	"github.com/mcp-bridge/codexec/internal/mcpclient"
	"github.com/mcp-bridge/codexec/internal/sandbox"
)

func envInt(name string, fallback int) int {
	if raw := os.Getenv(name); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return fallback
}

// DefaultTimeout and MaxTimeout mirror the original source's
// MCP_BRIDGE_TIMEOUT/MCP_BRIDGE_MAX_TIMEOUT env-overridable constants.
var (
	DefaultTimeout = envInt("MCP_BRIDGE_TIMEOUT", 30)
	MaxTimeout     = envInt("MCP_BRIDGE_MAX_TIMEOUT", 120)
)

func clampTimeout(requested int) int {
	if requested < 1 {
		return 1
	}
	if requested > MaxTimeout {
		return MaxTimeout
	}
	return requested
}

// Discoverer returns every currently known server spec, keyed by
// name. Implemented by internal/config; kept as an interface so
// bridge never imports config directly (config depends only on
// mcpclient's ServerSpec and never imports bridge).
type Discoverer interface {
	Discover(ctx context.Context) (map[string]mcpclient.ServerSpec, error)
}

// Bridge is the single entry point the CLI and the MCP stdio server
// both call into, grounded on the original source's MCPBridge.
type Bridge struct {
	Pool      *mcpclient.Pool
	Catalog   *catalog.Catalog
	Runner    *sandbox.SandboxRunner
	Discovery Discoverer
	StateDir  string
}

// New wires the four collaborators into a Bridge.
func New(pool *mcpclient.Pool, cat *catalog.Catalog, runner *sandbox.SandboxRunner, discovery Discoverer, stateDir string) *Bridge {
	return &Bridge{Pool: pool, Catalog: cat, Runner: runner, Discovery: discovery, StateDir: stateDir}
}

// RunPython executes code inside the sandbox with the given servers
// mounted, grounded on MCPBridge.execute_code plus the call_tool
// handler's summary/status mapping around it. timeout is clamped to
// [1, MaxTimeout] before use.
func (b *Bridge) RunPython(ctx context.Context, code string, servers []string, timeout int) ToolResponse {
	requestTimeout := clampTimeout(timeout)

	specs, err := b.Discovery.Discover(ctx)
	if err != nil {
		return buildToolResponse(responseInputs{
			Status:  "error",
			Summary: fmt.Sprintf("Sandbox error: %s", err),
			Servers: servers,
			Error:   err.Error(),
		})
	}

	requested := dedupe(servers)
	for _, name := range requested {
		spec, ok := specs[name]
		if !ok {
			return buildToolResponse(responseInputs{
				Status:  "error",
				Summary: fmt.Sprintf("Sandbox error: server %s is not configured", name),
				Servers: servers,
				Error:   fmt.Sprintf("server %s is not configured", name),
			})
		}
		if _, err := b.Pool.Open(ctx, spec); err != nil {
			return buildToolResponse(responseInputs{
				Status:  "error",
				Summary: fmt.Sprintf("Sandbox error: %s", err),
				Servers: servers,
				Error:   err.Error(),
			})
		}
		session, _ := b.Pool.Get(name)
		if _, err := b.Catalog.Ensure(name, spec.Cwd, func() ([]mcpclient.RawTool, error) {
			return session.ListTools(ctx)
		}); err != nil {
			return buildToolResponse(responseInputs{
				Status:  "error",
				Summary: fmt.Sprintf("Sandbox error: %s", err),
				Servers: servers,
				Error:   err.Error(),
			})
		}
	}

	allServerNames := func() []string {
		names := make([]string, 0, len(specs))
		for name := range specs {
			names = append(names, name)
		}
		return names
	}

	inv, err := invocation.Enter(invocation.Deps{
		Pool:           b.Pool,
		Catalog:        b.Catalog,
		AllServerNames: allServerNames,
		StateDir:       b.StateDir,
	}, requested)
	if err != nil {
		return buildToolResponse(responseInputs{
			Status:  "error",
			Summary: fmt.Sprintf("Sandbox error: %s", err),
			Servers: servers,
			Error:   err.Error(),
		})
	}
	defer inv.Exit()

	result, err := b.Runner.Execute(ctx, sandbox.RunSpec{
		UserCode:          code,
		ServerMetadata:    inv.ServerMetadata,
		DiscoveredServers: inv.DiscoveredServers,
		IPCDir:            inv.IPCDir,
		Timeout:           requestTimeout,
		RPCHandler:        inv.HandleRPC,
	})

	var timeoutErr *sandbox.ErrTimeout
	if errors.As(err, &timeoutErr) {
		return buildToolResponse(responseInputs{
			Status:      "timeout",
			Summary:     fmt.Sprintf("Timeout: execution exceeded %ds", requestTimeout),
			Stdout:      timeoutErr.Stdout,
			Stderr:      timeoutErr.Stderr,
			Servers:     servers,
			Error:       timeoutErr.Error(),
			TimeoutSecs: &requestTimeout,
		})
	}
	if err != nil {
		return buildToolResponse(responseInputs{
			Status:  "error",
			Summary: fmt.Sprintf("Sandbox error: %s", err),
			Servers: servers,
			Error:   err.Error(),
		})
	}

	if !result.OK {
		sbErr := &SandboxError{
			Message: fmt.Sprintf("Sandbox exited with code %d", result.ExitCode),
			Stdout:  result.Stdout,
			Stderr:  result.Stderr,
		}
		return buildToolResponse(responseInputs{
			Status:  "error",
			Summary: fmt.Sprintf("Sandbox error: %s", sbErr),
			Stdout:  result.Stdout,
			Stderr:  result.Stderr,
			Servers: servers,
			Error:   sbErr.Error(),
		})
	}

	summary := "Success"
	if result.Stdout == "" && result.Stderr == "" {
		summary = "Success (no output)"
	}
	exitCode := result.ExitCode
	return buildToolResponse(responseInputs{
		Status:   "success",
		Summary:  summary,
		ExitCode: &exitCode,
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
		Servers:  servers,
	})
}

// CallToolArgs validates run_python's raw MCP arguments, grounded on
// the call_tool handler's isinstance checks.
type CallToolArgs struct {
	Code    string
	Servers []string
	Timeout int
}

// ParseCallToolArgs validates an untyped arguments map the way the
// original source's call_tool handler does, returning a
// ValidationError for each malformed field in turn.
func ParseCallToolArgs(raw map[string]interface{}) (CallToolArgs, error) {
	code, ok := raw["code"].(string)
	if !ok || code == "" {
		return CallToolArgs{}, &ValidationError{Message: "Missing 'code' argument"}
	}

	var servers []string
	if rawServers, present := raw["servers"]; present {
		list, ok := rawServers.([]interface{})
		if !ok {
			return CallToolArgs{}, &ValidationError{Message: "'servers' must be a list"}
		}
		servers = make([]string, 0, len(list))
		for _, item := range list {
			servers = append(servers, fmt.Sprintf("%v", item))
		}
	}

	timeout := DefaultTimeout
	if rawTimeout, present := raw["timeout"]; present {
		switch v := rawTimeout.(type) {
		case int:
			timeout = v
		case float64:
			if v != math.Trunc(v) {
				return CallToolArgs{}, &ValidationError{Message: "'timeout' must be an integer"}
			}
			timeout = int(v)
		default:
			return CallToolArgs{}, &ValidationError{Message: "'timeout' must be an integer"}
		}
	}

	return CallToolArgs{Code: code, Servers: servers, Timeout: clampTimeout(timeout)}, nil
}

// ValidationErrorResponse renders the response shape for a
// CallToolArgs validation failure, mirroring the call_tool handler's
// validation_error branches.
func ValidationErrorResponse(err error) ToolResponse {
	return buildToolResponse(responseInputs{
		Status:  "validation_error",
		Summary: err.Error(),
		Error:   err.Error(),
	})
}

// UnknownToolResponse renders the response shape for a call_tool
// request naming a tool other than run_python.
func UnknownToolResponse(name string) ToolResponse {
	msg := fmt.Sprintf("Unknown tool: %s", name)
	return buildToolResponse(responseInputs{
		Status:  "error",
		Summary: msg,
		Error:   msg,
	})
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
