package sandbox

import (
	"os"
	"strconv"
)

// HardeningProfile configures the fixed set of flags every OCI
// container run carries. Grounded bit-for-bit on the original
// source's RootlessContainerSandbox._base_cmd.
type HardeningProfile struct {
	Image         string
	MemoryLimit   string // e.g. "512m"
	PidsLimit     int
	CPULimit      string // e.g. "1.0", empty disables the flag
	ContainerUser string // "uid:gid"
}

// DefaultHardeningProfile mirrors the original source's module-level
// defaults bit-for-bit (DEFAULT_IMAGE/DEFAULT_MEMORY/DEFAULT_PIDS/
// CONTAINER_USER), each overridable by the same env var names.
func DefaultHardeningProfile() HardeningProfile {
	pids, err := strconv.Atoi(envOrDefault("MCP_BRIDGE_PIDS", "128"))
	if err != nil {
		pids = 128
	}
	return HardeningProfile{
		Image:         envOrDefault("MCP_BRIDGE_IMAGE", "python:3.14-slim"),
		MemoryLimit:   envOrDefault("MCP_BRIDGE_MEMORY", "512m"),
		PidsLimit:     pids,
		CPULimit:      os.Getenv("MCP_BRIDGE_CPUS"),
		ContainerUser: envOrDefault("MCP_BRIDGE_CONTAINER_USER", "65534:65534"),
	}
}

func envOrDefault(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

// baseArgs builds the `<runtime> run ...` argument list common to every
// invocation, before the entrypoint path and volume mounts are appended.
func (p HardeningProfile) baseArgs(runtimeBin string) []string {
	args := []string{
		runtimeBin, "run",
		"--rm",
		"--interactive",
		"--network", "none",
		"--read-only",
		"--pids-limit", strconv.Itoa(p.PidsLimit),
		"--memory", p.MemoryLimit,
		"--tmpfs", "/tmp:rw,noexec,nosuid,nodev,size=64m",
		"--tmpfs", "/workspace:rw,noexec,nosuid,nodev,size=128m",
		"--workdir", "/workspace",
		"--env", "HOME=/workspace",
		"--env", "PYTHONUNBUFFERED=1",
		"--env", "PYTHONIOENCODING=utf-8",
		"--env", "PYTHONDONTWRITEBYTECODE=1",
		"--security-opt", "no-new-privileges",
		"--cap-drop", "ALL",
		"--user", p.ContainerUser,
	}
	if p.CPULimit != "" {
		args = append(args, "--cpus", p.CPULimit)
	}
	return args
}

// benignStderrPrefixes lists image-pull progress lines the runner
// strips from stderr on a clean (exit 0) run only.
var benignStderrPrefixes = []string{
	"Trying to pull ",
	"Getting image source signatures",
	"Copying blob ",
	"Copying config ",
	"Writing manifest to image destination",
}
