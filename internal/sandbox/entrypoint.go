package sandbox

import (
	"encoding/json"
	"strings"
)

// ServerMetadata is the shape shipped into the sandbox for one server:
// a deep-copied slice of catalog.ServerCatalogEntry, kept here as a
// plain map to avoid an import cycle between sandbox and catalog.
type ServerMetadata map[string]interface{}

// pythonLiteral renders s as a double-quoted Python string literal.
// JSON's string-escaping grammar (backslash, quote, control chars as
// \u escapes) is a subset of Python's, so a JSON-encoded string is
// always a valid Python literal; this lets EntrypointBuilder embed
// arbitrary byte sequences without ever concatenating user code into
// template source.
func pythonLiteral(s string) (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func jsonCompact(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// EntrypointBuilder renders the Python program executed inside the
// sandbox container. Pure function of its inputs. Grounded on the
// original source's RootlessContainerSandbox._render_entrypoint.
type EntrypointBuilder struct{}

// Render embeds code, serverMetadata, and discoveredServers as escaped
// literal constants in the returned Python source. No byte sequence in
// any argument can alter the surrounding template structure.
func (EntrypointBuilder) Render(code string, serverMetadata []ServerMetadata, discoveredServers []string) (string, error) {
	codeLiteral, err := pythonLiteral(code)
	if err != nil {
		return "", err
	}

	if serverMetadata == nil {
		serverMetadata = []ServerMetadata{}
	}
	metadataJSON, err := jsonCompact(serverMetadata)
	if err != nil {
		return "", err
	}
	metadataLiteral, err := pythonLiteral(metadataJSON)
	if err != nil {
		return "", err
	}

	if discoveredServers == nil {
		discoveredServers = []string{}
	}
	discoveredJSON, err := jsonCompact(discoveredServers)
	if err != nil {
		return "", err
	}
	discoveredLiteral, err := pythonLiteral(discoveredJSON)
	if err != nil {
		return "", err
	}

	src := entrypointTemplate
	src = strings.ReplaceAll(src, "__METADATA_JSON__", metadataLiteral)
	src = strings.ReplaceAll(src, "__DISCOVERED_JSON__", discoveredLiteral)
	src = strings.ReplaceAll(src, "__CODE_LITERAL__", codeLiteral)
	return src, nil
}

// entrypointTemplate mirrors the original source's template: redirect
// stdout/stderr to NDJSON envelopes, service rpc_response frames on
// stdin, install a mcp.runtime helper module, run the user's code with
// a top-level await, propagate SystemExit.
const entrypointTemplate = `import asyncio
import inspect
import json
import sys
import traceback
import types

AVAILABLE_SERVERS = json.loads(__METADATA_JSON__)
DISCOVERED_SERVERS = json.loads(__DISCOVERED_JSON__)
CODE = __CODE_LITERAL__

_PENDING_RESPONSES = {}
_REQUEST_COUNTER = 0
_READER_TASK = None


def _send_message(message):
    sys.__stdout__.write(json.dumps(message, separators=(",", ":")) + "\n")
    sys.__stdout__.flush()


class _StreamProxy:
    def __init__(self, kind):
        self._kind = kind

    def write(self, data):
        if not data:
            return
        _send_message({"type": self._kind, "data": data})

    def flush(self):
        pass

    def isatty(self):
        return False


sys.stdout = _StreamProxy("stdout")
sys.stderr = _StreamProxy("stderr")


async def _stdin_reader():
    loop = asyncio.get_running_loop()
    reader = asyncio.StreamReader()
    protocol = asyncio.StreamReaderProtocol(reader)
    transport = None
    try:
        transport, _ = await loop.connect_read_pipe(lambda: protocol, sys.stdin)
        while True:
            line = await reader.readline()
            if not line:
                break
            try:
                message = json.loads(line.decode())
            except Exception:
                continue
            if message.get("type") != "rpc_response":
                continue
            request_id = message.get("id")
            future = _PENDING_RESPONSES.pop(request_id, None)
            if future and not future.done():
                if message.get("success", True):
                    future.set_result(message.get("payload"))
                else:
                    future.set_exception(RuntimeError(message.get("error", "RPC error")))
    finally:
        if transport is not None:
            transport.close()
        for future in list(_PENDING_RESPONSES.values()):
            if not future.done():
                future.set_exception(RuntimeError("RPC channel closed"))


async def _ensure_reader():
    global _READER_TASK
    if _READER_TASK is None:
        _READER_TASK = asyncio.create_task(_stdin_reader())


async def _rpc_call(payload):
    await _ensure_reader()
    loop = asyncio.get_running_loop()
    global _REQUEST_COUNTER
    _REQUEST_COUNTER += 1
    request_id = _REQUEST_COUNTER
    future = loop.create_future()
    _PENDING_RESPONSES[request_id] = future
    _send_message({"type": "rpc_request", "id": request_id, "payload": payload})
    return await future


def _install_mcp_modules():
    mcp_pkg = types.ModuleType("mcp")
    mcp_pkg.__path__ = []
    sys.modules["mcp"] = mcp_pkg

    runtime_module = types.ModuleType("mcp.runtime")
    sys.modules["mcp.runtime"] = runtime_module
    mcp_pkg.runtime = runtime_module

    class MCPError(RuntimeError):
        "Raised when an MCP call fails."

    loaded_names = tuple(server.get("name") for server in AVAILABLE_SERVERS)

    def _lookup_server(name):
        for server in AVAILABLE_SERVERS:
            if server.get("name") == name:
                return server
        raise MCPError("Server %r is not loaded" % (name,))

    async def call_tool(server, tool, arguments=None):
        response = await _rpc_call({"type": "call_tool", "server": server, "tool": tool, "arguments": arguments or {}})
        if not response.get("success", True):
            raise MCPError(response.get("error", "MCP request failed"))
        return response.get("result")

    async def list_tools(server):
        response = await _rpc_call({"type": "list_tools", "server": server})
        if not response.get("success", True):
            raise MCPError(response.get("error", "MCP request failed"))
        return response.get("tools", [])

    async def list_servers():
        response = await _rpc_call({"type": "list_servers"})
        if not response.get("success", True):
            raise MCPError(response.get("error", "MCP request failed"))
        return tuple(response.get("servers", ()))

    def list_servers_sync():
        return tuple(name for name in loaded_names if name)

    def discovered_servers():
        return tuple(DISCOVERED_SERVERS)

    def describe_server(name):
        return _lookup_server(name)

    def list_loaded_server_metadata():
        return tuple(AVAILABLE_SERVERS)

    def list_tools_sync(server=None):
        if server is None:
            raise MCPError("list_tools_sync(server) requires a server name")
        info = _lookup_server(server)
        return tuple(info.get("tools", ()) or ())

    async def query_tool_docs(server, tool=None, detail="summary"):
        payload = {"type": "query_tool_docs", "server": server}
        if tool is not None:
            payload["tool"] = tool
        if detail is not None:
            payload["detail"] = detail
        response = await _rpc_call(payload)
        if not response.get("success", True):
            raise MCPError(response.get("error", "MCP request failed"))
        docs = response.get("docs", [])
        if tool is not None and isinstance(docs, list) and len(docs) == 1:
            return docs[0]
        return docs

    async def search_tool_docs(query, *, limit=5, detail="summary"):
        payload = {"type": "search_tool_docs", "query": query}
        if limit is not None:
            payload["limit"] = limit
        if detail is not None:
            payload["detail"] = detail
        response = await _rpc_call(payload)
        if not response.get("success", True):
            raise MCPError(response.get("error", "MCP request failed"))
        return response.get("results", [])

    def capability_summary():
        return (
            "locked-down Python sandbox; load MCP servers via the 'servers' argument. "
            "After import mcp.runtime as runtime, use runtime.list_servers_sync()/await "
            "runtime.list_servers(), runtime.discovered_servers(), runtime.list_tools_sync(server), "
            "await runtime.query_tool_docs(), await runtime.search_tool_docs() (RPC only; there are no "
            "_sync variants of these two), runtime.describe_server(), "
            "runtime.list_loaded_server_metadata(), runtime.capability_summary()."
        )

    runtime_module.call_tool = call_tool
    runtime_module.list_tools = list_tools
    runtime_module.list_servers = list_servers
    runtime_module.list_servers_sync = list_servers_sync
    runtime_module.discovered_servers = discovered_servers
    runtime_module.describe_server = describe_server
    runtime_module.list_loaded_server_metadata = list_loaded_server_metadata
    runtime_module.list_tools_sync = list_tools_sync
    runtime_module.query_tool_docs = query_tool_docs
    runtime_module.search_tool_docs = search_tool_docs
    runtime_module.capability_summary = capability_summary
    runtime_module.MCPError = MCPError

    class _ToolProxy:
        def __init__(self, server_name, tool_info):
            self._server_name = server_name
            self._raw_name = tool_info.get("name")

        async def __call__(self, **kwargs):
            return await call_tool(self._server_name, self._raw_name, kwargs)

    class _ServerProxy:
        def __init__(self, server_info):
            self._server_info = server_info
            self._tools_by_alias = {}
            for tool_info in server_info.get("tools", ()) or ():
                alias = tool_info.get("alias") or tool_info.get("name")
                self._tools_by_alias[alias] = _ToolProxy(server_info.get("name"), tool_info)

        def __getattr__(self, name):
            if name in self._tools_by_alias:
                return self._tools_by_alias[name]
            server_name = object.__getattribute__(self, "_server_info").get("name")
            return _ToolProxy(server_name, {"name": name})

    for server_info in AVAILABLE_SERVERS:
        alias = server_info.get("alias") or server_info.get("name")
        globals()["mcp_" + alias] = _ServerProxy(server_info)


_install_mcp_modules()


async def _run_user_code():
    local_ns = dict(globals())
    compiled = compile(CODE, "<sandbox>", "exec", flags=getattr(__import__("ast"), "PyCF_ALLOW_TOP_LEVEL_AWAIT", 0))
    result = eval(compiled, local_ns, local_ns)
    if inspect.isawaitable(result):
        await result


def _main():
    try:
        asyncio.run(_run_user_code())
    except SystemExit:
        raise
    except BaseException:
        traceback.print_exc(file=sys.__stderr__)
        sys.exit(1)


if __name__ == "__main__":
    _main()
`
