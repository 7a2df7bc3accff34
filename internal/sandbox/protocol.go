// Package sandbox drives the hardened container that executes untrusted
// user code and multiplexes its stdio against an NDJSON RPC channel.
package sandbox

import "encoding/json"

// MessageType is the tag of one NDJSON envelope exchanged with the
// sandboxed entrypoint.
type MessageType string

const (
	MsgStdout      MessageType = "stdout"
	MsgStderr      MessageType = "stderr"
	MsgRPCRequest  MessageType = "rpc_request"
	MsgRPCResponse MessageType = "rpc_response"
)

// Envelope is the wire shape of one line of the NDJSON protocol in
// either direction.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Data    string          `json:"data,omitempty"`
	ID      int64           `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Success *bool           `json:"success,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// RPCRequest is the decoded payload of an rpc_request envelope, as
// issued by the entrypoint's helper namespace.
type RPCRequest struct {
	Type   string          `json:"type"`
	Params json.RawMessage `json:"-"`
	Raw    json.RawMessage `json:"-"`
}

// SandboxResult is the outcome of one SandboxRunner.Execute call.
type SandboxResult struct {
	OK       bool
	ExitCode int
	Stdout   string
	Stderr   string
}

// RPCHandler answers one rpc_request payload. It must never block
// indefinitely and must always produce a result, even an error one, so
// the sandbox side never hangs waiting on an id.
type RPCHandler func(payload json.RawMessage) (success bool, result interface{}, errMsg string)
