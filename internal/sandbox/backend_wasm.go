package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// WASMBackend instantiates a precompiled WASI module that implements
// the sandbox's helper surface, network- and filesystem-denied by
// construction (no WithFSConfig call is made — wazero's default).
// Selected only explicitly, by MCP_BRIDGE_RUNTIME_BACKEND=wasm with
// MCP_BRIDGE_WASM_MODULE set; nothing falls back to it when no OCI
// runtime is found. Grounded directly on discovery.WASMWorker.
type WASMBackend struct {
	ModulePath string
}

func (b WASMBackend) Run(ctx context.Context, spec RunSpec) (*SandboxResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, time.Duration(spec.Timeout)*time.Second)
	defer cancel()

	runtime := wazero.NewRuntime(runCtx)
	defer runtime.Close(runCtx)

	if _, err := wasi_snapshot_preview1.Instantiate(runCtx, runtime); err != nil {
		return nil, fmt.Errorf("instantiate WASI: %w", err)
	}

	moduleBytes, err := os.ReadFile(b.ModulePath)
	if err != nil {
		return nil, fmt.Errorf("read wasm module %s: %w", b.ModulePath, err)
	}
	compiled, err := runtime.CompileModule(runCtx, moduleBytes)
	if err != nil {
		return nil, fmt.Errorf("compile wasm module %s: %w", b.ModulePath, err)
	}

	var stdout, stderr bytes.Buffer
	stdin := strings.NewReader(spec.UserCode)

	config := wazero.NewModuleConfig().
		WithStdin(stdin).
		WithStdout(&stdout).
		WithStderr(&stderr).
		WithArgs("mcp-sandbox")

	for k, v := range spec.ContainerEnv {
		config = config.WithEnv(k, v)
	}

	done := make(chan error, 1)
	go func() {
		mod, err := runtime.InstantiateModule(runCtx, compiled, config)
		if mod != nil {
			defer mod.Close(runCtx)
		}
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return &SandboxResult{OK: false, ExitCode: 1, Stdout: stdout.String(), Stderr: stderr.String() + err.Error()}, nil
		}
		return &SandboxResult{OK: true, ExitCode: 0, Stdout: stdout.String(), Stderr: stderr.String()}, nil
	case <-runCtx.Done():
		return nil, &ErrTimeout{Seconds: spec.Timeout, Stdout: stdout.String(), Stderr: stderr.String()}
	}
}
