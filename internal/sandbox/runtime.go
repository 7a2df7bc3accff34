package sandbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mcp-bridge/codexec/internal/logger"
)

// ErrNoRuntime is returned when no candidate container binary is
// present on PATH at all.
type ErrNoRuntime struct{ Candidates []string }

func (e *ErrNoRuntime) Error() string {
	return fmt.Sprintf("no container runtime found, tried: %s", strings.Join(e.Candidates, ", "))
}

// ErrRuntimeUnavailable is returned when a runtime binary exists but
// refuses to run (and is not a recoverable podman-machine state).
type ErrRuntimeUnavailable struct {
	Message string
	Stdout  string
	Stderr  string
}

func (e *ErrRuntimeUnavailable) Error() string { return e.Message }

var needsMachinePhrases = []string{
	"cannot connect to podman",
	"podman machine",
	"run the podman machine",
	"socket: connect",
}

// RuntimeDriver detects a container binary, drives the optional
// platform-VM lifecycle for podman, and tracks which host paths have
// been registered shared with that VM. Grounded in
// mcpclient.StdioSession's process-management idiom and in the
// original source's detect_runtime/_ensure_runtime_ready/_stop_runtime.
type RuntimeDriver struct {
	Binary            string
	IdleTimeout       time.Duration
	checkMu           sync.Mutex
	shareMu           sync.Mutex
	sharedPaths       map[string]bool
	shutdownMu        sync.Mutex
	shutdownTimer     *time.Timer
	shutdownGen       int
}

// DetectRuntime returns the first present candidate binary: preferred
// (typically MCP_BRIDGE_RUNTIME), then "podman", then "docker".
func DetectRuntime(preferred string) (string, error) {
	candidates := make([]string, 0, 3)
	if preferred != "" {
		candidates = append(candidates, preferred)
	}
	for _, c := range []string{"podman", "docker"} {
		found := false
		for _, existing := range candidates {
			if existing == c {
				found = true
				break
			}
		}
		if !found {
			candidates = append(candidates, c)
		}
	}

	for _, c := range candidates {
		if path, err := exec.LookPath(c); err == nil {
			return path, nil
		}
	}
	return "", &ErrNoRuntime{Candidates: candidates}
}

// NewRuntimeDriver builds a driver around an already-detected binary.
func NewRuntimeDriver(binary string, idleTimeout time.Duration) *RuntimeDriver {
	return &RuntimeDriver{
		Binary:      binary,
		IdleTimeout: idleTimeout,
		sharedPaths: make(map[string]bool),
	}
}

func (d *RuntimeDriver) isPodman() bool {
	return strings.Contains(filepath.Base(d.Binary), "podman")
}

func (d *RuntimeDriver) runCommand(ctx context.Context, args ...string) (exitCode int, stdout, stderr string, err error) {
	cmd := exec.CommandContext(ctx, d.Binary, args...)
	var outBuf, errBuf strings.Builder
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	runErr := cmd.Run()
	exitCode = 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return -1, outBuf.String(), errBuf.String(), runErr
		}
	}
	return exitCode, outBuf.String(), errBuf.String(), nil
}

// EnsureReady makes the runtime usable, performing the podman machine
// start/init dance when needed. Non-podman runtimes are assumed always
// ready. Retries up to three times overall.
func (d *RuntimeDriver) EnsureReady(ctx context.Context) error {
	d.checkMu.Lock()
	defer d.checkMu.Unlock()

	d.cancelIdleShutdown()

	if !d.isPodman() {
		return nil
	}

	for attempt := 0; attempt < 3; attempt++ {
		code, stdout, stderr, err := d.runCommand(ctx, "info", "--format", "{{json .}}")
		if err != nil {
			return &ErrRuntimeUnavailable{Message: err.Error()}
		}
		if code == 0 {
			return nil
		}

		combined := strings.ToLower(stdout + "\n" + stderr)
		needsMachine := false
		for _, phrase := range needsMachinePhrases {
			if strings.Contains(combined, phrase) {
				needsMachine = true
				break
			}
		}
		if !needsMachine {
			return &ErrRuntimeUnavailable{Message: "container runtime is unavailable", Stdout: stdout, Stderr: stderr}
		}

		startCode, startStdout, startStderr, err := d.runCommand(ctx, "machine", "start")
		if err != nil {
			return &ErrRuntimeUnavailable{Message: err.Error()}
		}
		if startCode == 0 {
			continue
		}

		startCombined := strings.ToLower(startStdout + "\n" + startStderr)
		if strings.Contains(startCombined, "does not exist") || strings.Contains(startCombined, "no such machine") {
			initCode, initStdout, initStderr, err := d.runCommand(ctx, "machine", "init")
			if err != nil {
				return &ErrRuntimeUnavailable{Message: err.Error()}
			}
			if initCode != 0 {
				return &ErrRuntimeUnavailable{Message: "failed to initialize podman machine", Stdout: initStdout, Stderr: initStderr}
			}
			continue
		}

		return &ErrRuntimeUnavailable{Message: "failed to start podman machine", Stdout: startStdout, Stderr: startStderr}
	}

	return &ErrRuntimeUnavailable{Message: "unable to prepare podman runtime", Stderr: "repeated podman machine start attempts failed"}
}

// EnsureShared registers path as visible inside the podman VM.
// Idempotent and safe for concurrent callers.
func (d *RuntimeDriver) EnsureShared(ctx context.Context, path string) error {
	resolved, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(resolved, 0o755); err != nil {
		return err
	}

	d.shareMu.Lock()
	defer d.shareMu.Unlock()

	if d.sharedPaths[resolved] {
		return nil
	}

	if d.isPodman() {
		shareSpec := resolved + ":" + resolved
		code, _, stderr, err := d.runCommand(ctx, "machine", "set", "--volume", shareSpec)
		if err != nil {
			return err
		}
		if code != 0 && !strings.Contains(strings.ToLower(stderr), "already shared") {
			return &ErrRuntimeUnavailable{Message: "failed to share directory with podman machine", Stderr: stderr}
		}
	}

	d.sharedPaths[resolved] = true
	return nil
}

func (d *RuntimeDriver) stopRuntime(ctx context.Context) {
	if !d.isPodman() {
		return
	}
	code, stdout, stderr, err := d.runCommand(ctx, "machine", "stop")
	if err != nil || code == 0 {
		return
	}
	combined := strings.ToLower(stdout + "\n" + stderr)
	if strings.Contains(combined, "already stopped") || strings.Contains(combined, "is not running") {
		return
	}
	logger.AddLog("DEBUG", "failed to stop podman machine", logger.F("stderr", strings.TrimSpace(stderr)))
}

func (d *RuntimeDriver) cancelIdleShutdown() {
	d.shutdownMu.Lock()
	defer d.shutdownMu.Unlock()
	if d.shutdownTimer != nil {
		d.shutdownTimer.Stop()
		d.shutdownTimer = nil
	}
	d.shutdownGen++
}

// ScheduleIdleShutdown arms a timer that stops the podman machine after
// IdleTimeout of inactivity. Any subsequent EnsureReady cancels it.
func (d *RuntimeDriver) ScheduleIdleShutdown() {
	if d.IdleTimeout <= 0 {
		return
	}

	d.shutdownMu.Lock()
	if d.shutdownTimer != nil {
		d.shutdownTimer.Stop()
	}
	d.shutdownGen++
	gen := d.shutdownGen
	d.shutdownTimer = time.AfterFunc(d.IdleTimeout, func() {
		d.shutdownMu.Lock()
		stale := gen != d.shutdownGen
		d.shutdownMu.Unlock()
		if stale {
			return
		}
		d.stopRuntime(context.Background())
	})
	d.shutdownMu.Unlock()
}
