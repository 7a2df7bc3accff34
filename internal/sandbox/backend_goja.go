package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
)

// GojaBackend executes user code as JavaScript, in-process, via an
// embedded goja VM instead of a container. It implements the same
// RunSpec/SandboxResult contract as OCIBackend (timeout, buffered
// stdout/stderr, RPC round trip) but is not the backend exercised by
// the literal Python test scenarios — it exists for fast local
// development and this repo's own test suite, which cannot spawn real
// containers. Grounded directly on discovery.CodeInterpreter.
type GojaBackend struct{}

func (GojaBackend) Run(ctx context.Context, spec RunSpec) (*SandboxResult, error) {
	vm := goja.New()

	var stdout, stderr strings.Builder

	vm.Set("print", func(args ...interface{}) {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = fmt.Sprint(a)
		}
		stdout.WriteString(strings.Join(parts, " "))
		stdout.WriteString("\n")
	})

	vm.Set("log", func(args ...interface{}) {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = fmt.Sprint(a)
		}
		stdout.WriteString(strings.Join(parts, " "))
		stdout.WriteString("\n")
	})

	vm.Set("callTool", func(server, tool string, arguments map[string]interface{}) interface{} {
		payload, _ := json.Marshal(map[string]interface{}{
			"type": "call_tool", "server": server, "tool": tool, "arguments": arguments,
		})
		if spec.RPCHandler == nil {
			panic(vm.NewGoError(fmt.Errorf("RPC handler unavailable")))
		}
		success, result, errMsg := spec.RPCHandler(payload)
		if !success {
			panic(vm.NewGoError(fmt.Errorf("%s", errMsg)))
		}
		return result
	})

	vm.Set("listServers", func() []string {
		names := make([]string, len(spec.DiscoveredServers))
		copy(names, spec.DiscoveredServers)
		return names
	})

	vm.Set("searchToolDocs", func(query string, limit int) interface{} {
		payload, _ := json.Marshal(map[string]interface{}{"type": "search_tool_docs", "query": query, "limit": limit})
		if spec.RPCHandler == nil {
			return []interface{}{}
		}
		_, result, _ := spec.RPCHandler(payload)
		return result
	})

	done := make(chan struct{})
	var runErr error

	go func() {
		defer close(done)
		wrapped := "(function() {\n" + spec.UserCode + "\n})()"
		_, runErr = vm.RunString(wrapped)
	}()

	timeout := time.Duration(spec.Timeout) * time.Second
	select {
	case <-done:
	case <-time.After(timeout):
		vm.Interrupt("timeout")
		<-done
		return nil, &ErrTimeout{Seconds: spec.Timeout, Stdout: stdout.String(), Stderr: stderr.String()}
	case <-ctx.Done():
		vm.Interrupt("cancelled")
		<-done
		return nil, ctx.Err()
	}

	if runErr != nil {
		stderr.WriteString(runErr.Error())
		stderr.WriteString("\n")
		return &SandboxResult{OK: false, ExitCode: 1, Stdout: stdout.String(), Stderr: stderr.String()}, nil
	}

	return &SandboxResult{OK: true, ExitCode: 0, Stdout: stdout.String(), Stderr: stderr.String()}, nil
}
