package sandbox

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrTimeout carries whatever stdout/stderr had been buffered when the
// sandbox's timeout expired.
type ErrTimeout struct {
	Seconds int
	Stdout  string
	Stderr  string
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("execution timed out after %ds", e.Seconds)
}

// OCIBackend runs the rendered entrypoint inside a hardened container
// via an already-detected runtime binary. Grounded on
// mcpclient.StdioSession's pipe/goroutine idiom and the original
// source's RootlessContainerSandbox.execute.
type OCIBackend struct {
	Driver  *RuntimeDriver
	Profile HardeningProfile
}

// NewOCIBackend builds the default, spec-primary backend.
func NewOCIBackend(driver *RuntimeDriver, profile HardeningProfile) *OCIBackend {
	return &OCIBackend{Driver: driver, Profile: profile}
}

func (b *OCIBackend) Run(ctx context.Context, spec RunSpec) (*SandboxResult, error) {
	if err := b.Driver.EnsureReady(ctx); err != nil {
		return nil, err
	}
	if err := b.Driver.EnsureShared(ctx, spec.IPCDir); err != nil {
		return nil, err
	}

	source, err := (EntrypointBuilder{}).Render(spec.UserCode, spec.ServerMetadata, spec.DiscoveredServers)
	if err != nil {
		return nil, fmt.Errorf("render entrypoint: %w", err)
	}

	entrypointPath := filepath.Join(spec.IPCDir, "entrypoint.py")
	if err := os.WriteFile(entrypointPath, []byte(source), 0o644); err != nil {
		return nil, fmt.Errorf("write entrypoint: %w", err)
	}
	entrypointTarget := "/ipc/entrypoint.py"

	args := b.Profile.baseArgs(b.Driver.Binary)
	args = append(args, "--volume", spec.IPCDir+":/ipc:ro")
	for _, mount := range spec.VolumeMounts {
		args = append(args, "--volume", mount)
	}
	for k, v := range spec.ContainerEnv {
		args = append(args, "--env", k+"="+v)
	}
	args = append(args, b.Profile.Image, "python3", "-u", entrypointTarget)

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start container: %w", err)
	}

	var mu sync.Mutex
	var stdoutChunks, stderrChunks []string
	appendStdout := func(s string) {
		mu.Lock()
		stdoutChunks = append(stdoutChunks, s)
		mu.Unlock()
	}
	appendStderr := func(s string) {
		mu.Lock()
		stderrChunks = append(stderrChunks, s)
		mu.Unlock()
	}

	stdoutDone := make(chan struct{})
	go func() {
		defer close(stdoutDone)
		reader := bufio.NewReaderSize(stdout, 64*1024)
		for {
			line, err := reader.ReadBytes('\n')
			if len(line) > 0 {
				handleOCILine(line, stdin, spec.RPCHandler, appendStdout, appendStderr)
			}
			if err != nil {
				return
			}
		}
	}()

	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		buf := make([]byte, 4096)
		for {
			n, err := stderr.Read(buf)
			if n > 0 {
				appendStderr(string(buf[:n]))
			}
			if err != nil {
				return
			}
		}
	}()

	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	timeout := time.Duration(spec.Timeout) * time.Second
	select {
	case <-time.After(timeout):
		cmd.Process.Kill()
		<-waitDone
		<-stdoutDone
		<-stderrDone
		mu.Lock()
		result := &ErrTimeout{Seconds: spec.Timeout, Stdout: strings.Join(stdoutChunks, ""), Stderr: strings.Join(stderrChunks, "")}
		mu.Unlock()
		b.Driver.ScheduleIdleShutdown()
		return nil, result
	case err := <-waitDone:
		stdin.Close()
		<-stdoutDone
		<-stderrDone

		mu.Lock()
		stdoutText := strings.Join(stdoutChunks, "")
		stderrText := strings.Join(stderrChunks, "")
		mu.Unlock()

		exitCode := 0
		if err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				exitCode = exitErr.ExitCode()
			} else {
				return nil, fmt.Errorf("container wait: %w", err)
			}
		}
		if exitCode == 0 {
			stderrText = filterBenignStderr(stderrText)
		}

		b.Driver.ScheduleIdleShutdown()
		return &SandboxResult{OK: exitCode == 0, ExitCode: exitCode, Stdout: stdoutText, Stderr: stderrText}, nil
	}
}

func handleOCILine(line []byte, stdin io.Writer, handler RPCHandler, appendStdout, appendStderr func(string)) {
	trimmed := strings.TrimRight(string(line), "\n")
	if trimmed == "" {
		return
	}

	var env Envelope
	if err := json.Unmarshal([]byte(trimmed), &env); err != nil {
		appendStderr(trimmed + "\n")
		return
	}

	switch env.Type {
	case MsgStdout:
		appendStdout(env.Data)
	case MsgStderr:
		appendStderr(env.Data)
	case MsgRPCRequest:
		var success bool
		var result interface{}
		var errMsg string
		if handler == nil {
			success, errMsg = false, "RPC handler unavailable"
		} else {
			success, result, errMsg = handler(env.Payload)
		}
		reply := Envelope{
			Type:    MsgRPCResponse,
			ID:      env.ID,
			Success: &success,
		}
		if payload, err := json.Marshal(result); err == nil {
			reply.Payload = payload
		}
		if !success {
			reply.Error = errMsg
		}
		data, err := json.Marshal(reply)
		if err != nil {
			appendStderr("failed to encode RPC response\n")
			return
		}
		data = append(data, '\n')
		if _, err := stdin.Write(data); err != nil {
			appendStderr("failed to deliver RPC response\n")
		}
	default:
		appendStderr(trimmed)
	}
}

func filterBenignStderr(stderr string) string {
	if stderr == "" {
		return stderr
	}
	lines := strings.Split(stderr, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		benign := false
		for _, prefix := range benignStderrPrefixes {
			if strings.HasPrefix(line, prefix) {
				benign = true
				break
			}
		}
		if !benign {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
