// Package server speaks the bridge's own outer MCP protocol: the same
// line-delimited JSON-RPC 2.0 shape mcpclient speaks downstream, since
// "the bridge is itself such a server" (SPEC_FULL.md §6). Grounded on
// internal/api/mcp.go's JSONRPCRequest/Response re-export idiom.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/mcp-bridge/codexec/internal/bridge"
	"github.com/mcp-bridge/codexec/internal/logger"
	"github.com/mcp-bridge/codexec/internal/mcpclient"
)

const capabilityResourceURI = "resource://mcp-bridge/capabilities"

const capabilitySummary = "Execute Python inside a rootless container sandbox. " +
	"Pass servers=[...] to mount MCP proxies (mcp_<alias> globals) and call " +
	"runtime.capability_summary() inside the sandbox for the full helper reference."

// Server dispatches the outer protocol's initialize/tools/resources
// methods against one Bridge.
type Server struct {
	Bridge *bridge.Bridge
}

// New wraps b for stdio serving.
func New(b *bridge.Bridge) *Server {
	return &Server{Bridge: b}
}

// Serve reads one JSON-RPC request per line from in and writes one
// response per line to out until in is exhausted or ctx-less EOF,
// matching the teacher's line-delimited stdio framing idiom.
func (s *Server) Serve(in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			resp := s.handleLine(line)
			if resp != nil {
				if err := writeResponse(out, resp); err != nil {
					return err
				}
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

func writeResponse(out io.Writer, resp *mcpclient.JSONRPCResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = out.Write(data)
	return err
}

func (s *Server) handleLine(line []byte) *mcpclient.JSONRPCResponse {
	var req mcpclient.JSONRPCRequest
	if err := json.Unmarshal(line, &req); err != nil {
		return errorResponse(nil, mcpclient.ParseError, "parse error")
	}

	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		return nil
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(req)
	case "resources/list":
		return s.handleResourcesList(req)
	case "resources/read":
		return s.handleResourcesRead(req)
	default:
		return errorResponse(req.ID, mcpclient.MethodNotFound, fmt.Sprintf("unknown method %s", req.Method))
	}
}

func (s *Server) handleInitialize(req mcpclient.JSONRPCRequest) *mcpclient.JSONRPCResponse {
	return okResponse(req.ID, map[string]interface{}{
		"protocolVersion": "2024-11-05",
		"capabilities":    map[string]interface{}{"tools": map[string]interface{}{}, "resources": map[string]interface{}{}},
		"serverInfo":      map[string]string{"name": "mcp-bridge-codexec", "version": "0.1.0"},
	})
}

func (s *Server) handleToolsList(req mcpclient.JSONRPCRequest) *mcpclient.JSONRPCResponse {
	return okResponse(req.ID, map[string]interface{}{
		"tools": []map[string]interface{}{
			{
				"name":        "run_python",
				"description": "Execute Python code inside a rootless container sandbox. Use the optional 'servers' array to load MCP servers for this execution.",
				"inputSchema": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"code":    map[string]interface{}{"type": "string", "description": capabilitySummary},
						"servers": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
						"timeout": map[string]interface{}{"type": "integer", "minimum": 1, "maximum": bridge.MaxTimeout, "default": bridge.DefaultTimeout},
					},
					"required": []string{"code"},
				},
			},
		},
	})
}

func (s *Server) handleToolsCall(req mcpclient.JSONRPCRequest) *mcpclient.JSONRPCResponse {
	var params struct {
		Name      string                 `json:"name"`
		Arguments map[string]interface{} `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, mcpclient.InvalidParams, "invalid tools/call params")
	}

	if params.Name != "run_python" {
		return okResponse(req.ID, toolResultPayload(bridge.UnknownToolResponse(params.Name)))
	}

	args, err := bridge.ParseCallToolArgs(params.Arguments)
	if err != nil {
		return okResponse(req.ID, toolResultPayload(bridge.ValidationErrorResponse(err)))
	}

	logger.AddLog("INFO", "run_python", logger.F("servers", args.Servers), logger.F("timeout", args.Timeout))
	resp := s.Bridge.RunPython(context.Background(), args.Code, args.Servers, args.Timeout)
	return okResponse(req.ID, toolResultPayload(resp))
}

func toolResultPayload(resp bridge.ToolResponse) map[string]interface{} {
	return map[string]interface{}{
		"content":           []map[string]interface{}{{"type": "text", "text": resp.Text}},
		"structuredContent": resp.StructuredContent,
		"isError":           resp.IsError,
	}
}

func (s *Server) handleResourcesList(req mcpclient.JSONRPCRequest) *mcpclient.JSONRPCResponse {
	return okResponse(req.ID, map[string]interface{}{
		"resources": []map[string]interface{}{
			{
				"uri":         capabilityResourceURI,
				"name":        "code-execution-capabilities",
				"description": "Capability overview, helper reference, and sandbox usage notes.",
				"mimeType":    "text/markdown",
			},
		},
	})
}

func (s *Server) handleResourcesRead(req mcpclient.JSONRPCRequest) *mcpclient.JSONRPCResponse {
	var params struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil || params.URI != capabilityResourceURI {
		return errorResponse(req.ID, mcpclient.InvalidParams, fmt.Sprintf("unknown resource: %s", params.URI))
	}
	return okResponse(req.ID, map[string]interface{}{
		"contents": []map[string]interface{}{
			{"uri": capabilityResourceURI, "mimeType": "text/markdown", "text": capabilitySummary},
		},
	})
}

func okResponse(id interface{}, result interface{}) *mcpclient.JSONRPCResponse {
	return &mcpclient.JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: result}
}

func errorResponse(id interface{}, code int, message string) *mcpclient.JSONRPCResponse {
	return &mcpclient.JSONRPCResponse{JSONRPC: "2.0", ID: id, Error: &mcpclient.JSONRPCError{Code: code, Message: message}}
}
