package mcpclient

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/mcp-bridge/codexec/internal/logger"
)

// ClientSession is the abstract handle the rest of the bridge programs
// against: a long-lived downstream MCP server reachable over stdio.
type ClientSession interface {
	ListTools(ctx context.Context) ([]RawTool, error)
	CallTool(ctx context.Context, name string, arguments map[string]interface{}) (*JSONRPCResponse, error)
	Stop() error
}

// StdioSession owns a child process speaking MCP over stdio. Lifecycle:
// Start performs the initialize handshake; the session then serves
// ListTools/CallTool until Stop tears it down. Grounded on
// discovery.StdioWorker from the teacher repo.
type StdioSession struct {
	spec ServerSpec

	mu          sync.Mutex
	cmd         *exec.Cmd
	stdin       io.WriteCloser
	stdout      *bufio.Reader
	initialized bool
	requestID   int64
}

// NewStdioSession creates a session for spec but does not start it.
func NewStdioSession(spec ServerSpec) *StdioSession {
	return &StdioSession{spec: spec, requestID: 1}
}

// Start spawns the downstream process and performs the MCP initialize
// handshake. Idempotent.
func (s *StdioSession) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd != nil && s.cmd.Process != nil {
		return nil
	}

	s.cmd = exec.CommandContext(ctx, s.spec.Command, s.spec.Args...)
	if s.spec.Cwd != "" {
		s.cmd.Dir = s.spec.Cwd
	}

	stdin, err := s.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}
	s.stdin = stdin

	stdout, err := s.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	s.stdout = bufio.NewReader(stdout)

	stderr, err := s.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("create stderr pipe: %w", err)
	}
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			logger.AddLog("INFO", scanner.Text(), logger.F("server", s.spec.Name))
		}
	}()

	s.cmd.Env = os.Environ()
	for k, v := range s.spec.Env {
		s.cmd.Env = append(s.cmd.Env, k+"="+v)
	}

	if err := s.cmd.Start(); err != nil {
		return fmt.Errorf("start MCP server %s: %w", s.spec.Name, err)
	}

	if err := s.initializeHandshake(ctx); err != nil {
		s.cmd.Process.Kill()
		return fmt.Errorf("initialize handshake with %s: %w", s.spec.Name, err)
	}

	s.initialized = true
	return nil
}

func (s *StdioSession) initializeHandshake(ctx context.Context) error {
	initReq := JSONRPCRequest{JSONRPC: "2.0", ID: s.nextID(), Method: "initialize"}
	params := map[string]interface{}{
		"protocolVersion": "2024-11-05",
		"capabilities":    map[string]interface{}{},
		"clientInfo":      map[string]string{"name": "mcp-bridge", "version": "0.1.0"},
	}
	initReq.Params, _ = json.Marshal(params)

	resp, err := s.sendRequest(ctx, initReq)
	if err != nil {
		return fmt.Errorf("initialize request: %w", err)
	}
	if resp.Error != nil {
		return fmt.Errorf("initialize error: %s (code %d)", resp.Error.Message, resp.Error.Code)
	}

	notif := JSONRPCRequest{JSONRPC: "2.0", Method: "notifications/initialized"}
	return s.sendNotification(notif)
}

// ListTools asks the downstream server for its tool list.
func (s *StdioSession) ListTools(ctx context.Context) ([]RawTool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return nil, fmt.Errorf("session %s not initialized", s.spec.Name)
	}

	req := JSONRPCRequest{JSONRPC: "2.0", ID: s.nextID(), Method: "tools/list"}
	resp, err := s.sendRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("tools/list error: %s", resp.Error.Message)
	}

	var result struct {
		Tools []RawTool `json:"tools"`
	}
	raw, err := json.Marshal(resp.Result)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode tools/list result: %w", err)
	}
	return result.Tools, nil
}

// CallTool invokes a downstream tool and returns its raw JSON-RPC
// response (the caller decides how to interpret Error vs Result).
func (s *StdioSession) CallTool(ctx context.Context, name string, arguments map[string]interface{}) (*JSONRPCResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return nil, fmt.Errorf("session %s not initialized", s.spec.Name)
	}

	req := JSONRPCRequest{JSONRPC: "2.0", ID: s.nextID(), Method: "tools/call"}
	params := struct {
		Name      string                 `json:"name"`
		Arguments map[string]interface{} `json:"arguments"`
	}{Name: name, Arguments: arguments}
	req.Params, _ = json.Marshal(params)

	return s.sendRequest(ctx, req)
}

// sendRequest writes req and blocks for exactly one response line,
// honouring ctx cancellation.
func (s *StdioSession) sendRequest(ctx context.Context, req JSONRPCRequest) (*JSONRPCResponse, error) {
	reqBytes, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	reqBytes = append(reqBytes, '\n')

	if _, err := s.stdin.Write(reqBytes); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	type result struct {
		resp *JSONRPCResponse
		err  error
	}
	done := make(chan result, 1)
	go func() {
		line, err := s.stdout.ReadBytes('\n')
		if err != nil {
			done <- result{err: err}
			return
		}
		var resp JSONRPCResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			done <- result{err: fmt.Errorf("parse response: %w", err)}
			return
		}
		done <- result{resp: &resp}
	}()

	select {
	case r := <-done:
		return r.resp, r.err
	case <-time.After(30 * time.Second):
		return nil, fmt.Errorf("timeout waiting for response to %s", req.Method)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *StdioSession) sendNotification(req JSONRPCRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = s.stdin.Write(data)
	return err
}

func (s *StdioSession) nextID() int64 {
	s.requestID++
	return s.requestID
}

// Stop attempts a graceful shutdown, falling back to a kill after a
// short grace period.
func (s *StdioSession) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = false
	if s.stdin != nil {
		s.stdin.Close()
	}
	if s.cmd == nil || s.cmd.Process == nil {
		return nil
	}

	s.cmd.Process.Signal(os.Interrupt)
	done := make(chan error, 1)
	go func() { done <- s.cmd.Wait() }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		s.cmd.Process.Kill()
	}
	return nil
}
