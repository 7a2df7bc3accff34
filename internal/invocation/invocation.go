// Package invocation scopes one Bridge.RunPython call: which servers the
// sandbox may address, the IPC directory backing it, and the RPC
// dispatch table the SandboxRunner consults.
package invocation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/mcp-bridge/codexec/internal/catalog"
	"github.com/mcp-bridge/codexec/internal/mcpclient"
	"github.com/mcp-bridge/codexec/internal/sandbox"
)

// Deps is the slice of bridge-owned collaborators an Invocation
// borrows references to for its lifetime. It never mutates sessions
// or specs, matching spec.md §3's ownership note.
type Deps struct {
	Pool    *mcpclient.Pool
	Catalog *catalog.Catalog
	// AllServerNames returns every server name currently known to
	// discovery, used to populate DiscoveredServers.
	AllServerNames func() []string
	// StateDir is the configurable root IPC directories are created
	// under (default "./.mcp-bridge").
	StateDir string
}

// Invocation is the per-request scope object described in spec.md
// §4.6, grounded on the original source's SandboxInvocation.
type Invocation struct {
	deps Deps

	RequestedServers  []string
	AllowedServers    map[string]bool
	ServerMetadata    []sandbox.ServerMetadata
	DiscoveredServers []string
	IPCDir            string
}

// Enter requires every requested server to be already loaded in the
// pool and catalogued (it returns an error otherwise; it loads
// nothing itself), then materialises a fresh IPC directory. Duplicate names in
// requestedServers are de-duplicated preserving first occurrence,
// matching the Python source's dict.fromkeys idiom.
func Enter(deps Deps, requestedServers []string) (*Invocation, error) {
	seen := make(map[string]bool, len(requestedServers))
	ordered := make([]string, 0, len(requestedServers))
	for _, name := range requestedServers {
		if seen[name] {
			continue
		}
		seen[name] = true
		ordered = append(ordered, name)
	}

	inv := &Invocation{
		deps:             deps,
		RequestedServers: ordered,
		AllowedServers:   make(map[string]bool, len(ordered)),
	}

	for _, name := range ordered {
		if _, ok := deps.Pool.Get(name); !ok {
			return nil, fmt.Errorf("server %s is not loaded", name)
		}
		entry, ok := deps.Catalog.Snapshot(name)
		if !ok {
			return nil, fmt.Errorf("server %s has no catalog entry", name)
		}
		inv.AllowedServers[name] = true
		inv.ServerMetadata = append(inv.ServerMetadata, toSandboxMetadata(entry))
	}

	discovered := deps.AllServerNames()
	sort.Strings(discovered)
	inv.DiscoveredServers = discovered

	stateDir := deps.StateDir
	if stateDir == "" {
		stateDir = "./.mcp-bridge"
	}
	baseDir, err := filepath.Abs(stateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, err
	}

	ipcDir, err := os.MkdirTemp(baseDir, "mcp-bridge-ipc-")
	if err != nil {
		return nil, fmt.Errorf("create IPC dir: %w", err)
	}
	if err := os.Chmod(ipcDir, 0o755); err != nil {
		return nil, err
	}
	inv.IPCDir = ipcDir

	return inv, nil
}

func toSandboxMetadata(entry *catalog.ServerCatalogEntry) sandbox.ServerMetadata {
	tools := make([]interface{}, 0, len(entry.Tools))
	for _, t := range entry.Tools {
		tool := map[string]interface{}{
			"name":        t.RawName,
			"alias":       t.Alias,
			"description": t.Description,
		}
		if t.InputSchema != nil {
			tool["input_schema"] = t.InputSchema
		}
		tools = append(tools, tool)
	}
	meta := sandbox.ServerMetadata{
		"name":  entry.ServerName,
		"alias": entry.ServerAlias,
		"tools": tools,
	}
	if entry.Cwd != "" {
		meta["cwd"] = entry.Cwd
	}
	return meta
}

// Exit removes the IPC directory and all its contents, even if called
// on a failure path.
func (inv *Invocation) Exit() error {
	if inv.IPCDir == "" {
		return nil
	}
	return os.RemoveAll(inv.IPCDir)
}

type rpcRequest struct {
	Type      string          `json:"type"`
	Server    string          `json:"server"`
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments"`
	Query     string          `json:"query"`
	Limit     *int            `json:"limit"`
	Detail    string          `json:"detail"`
}

// HandleRPC is bound to a sandbox.RPCHandler by Bridge.RunPython. It
// validates the request against AllowedServers before ever touching
// the pool, per spec.md §8's access-boundary property.
func (inv *Invocation) HandleRPC(payload json.RawMessage) (bool, interface{}, string) {
	var req rpcRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return false, nil, "malformed RPC payload"
	}

	switch req.Type {
	case "list_servers":
		names := make([]string, 0, len(inv.AllowedServers))
		for name := range inv.AllowedServers {
			names = append(names, name)
		}
		sort.Strings(names)
		return true, map[string]interface{}{"servers": names}, ""

	case "query_tool_docs":
		if !inv.AllowedServers[req.Server] {
			return false, nil, fmt.Sprintf("server %q is not available", req.Server)
		}
		detail := catalog.NormaliseDetail(req.Detail)
		docs, err := inv.deps.Catalog.Docs(req.Server, req.Tool, detail)
		if err != nil {
			return false, nil, err.Error()
		}
		return true, map[string]interface{}{"docs": docs}, ""

	case "search_tool_docs":
		if req.Query == "" {
			return false, nil, "Missing 'query' value"
		}
		limit := 5
		if req.Limit != nil {
			limit = *req.Limit
		}
		detail := catalog.NormaliseDetail(req.Detail)
		names := make([]string, 0, len(inv.AllowedServers))
		for name := range inv.AllowedServers {
			names = append(names, name)
		}
		sort.Strings(names)
		results := inv.deps.Catalog.Search(req.Query, names, limit, detail)
		return true, map[string]interface{}{"results": results}, ""

	case "list_tools", "call_tool":
		if !inv.AllowedServers[req.Server] {
			return false, nil, fmt.Sprintf("server %q is not available", req.Server)
		}
		session, ok := inv.deps.Pool.Get(req.Server)
		if !ok {
			return false, nil, fmt.Sprintf("server %s is not loaded", req.Server)
		}
		return inv.dispatchSession(session, req)

	default:
		return false, nil, fmt.Sprintf("Unknown RPC type: %s", req.Type)
	}
}

func (inv *Invocation) dispatchSession(session mcpclient.ClientSession, req rpcRequest) (bool, interface{}, string) {
	ctx := context.Background()
	if req.Type == "list_tools" {
		tools, err := session.ListTools(ctx)
		if err != nil {
			return false, nil, err.Error()
		}
		return true, map[string]interface{}{"tools": tools}, ""
	}

	if req.Tool == "" {
		return false, nil, "Missing tool name"
	}
	var args map[string]interface{}
	if len(req.Arguments) > 0 {
		if err := json.Unmarshal(req.Arguments, &args); err != nil {
			return false, nil, "Arguments must be an object"
		}
	}
	resp, err := session.CallTool(ctx, req.Tool, args)
	if err != nil {
		return false, nil, err.Error()
	}
	if resp.Error != nil {
		return false, nil, resp.Error.Message
	}
	return true, map[string]interface{}{"result": resp.Result}, ""
}
