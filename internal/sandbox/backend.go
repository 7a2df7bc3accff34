package sandbox

import "context"

// RunSpec is everything a Backend needs to run one invocation's user
// code to completion (or timeout) and collect its result. Each
// Backend renders its own entrypoint flavor from UserCode/
// ServerMetadata/DiscoveredServers; only the OCI backend's flavor is
// Python (see EntrypointBuilder) since it is the only backend that
// actually spawns the language runtime the spec's literal test
// scenarios assume.
type RunSpec struct {
	UserCode          string
	ServerMetadata    []ServerMetadata
	DiscoveredServers []string

	IPCDir       string
	Timeout      int // seconds, already clamped by the caller
	ContainerEnv map[string]string
	VolumeMounts []string
	RPCHandler   RPCHandler
}

// Backend runs one rendered entrypoint to completion (or timeout) and
// returns its classified result. The OCI backend is the spec-faithful
// default; goja-local and wasm are interchangeable alternates behind
// the same contract.
type Backend interface {
	Run(ctx context.Context, spec RunSpec) (*SandboxResult, error)
}

// BackendKind selects which Backend a SandboxRunner drives.
type BackendKind string

const (
	BackendOCI       BackendKind = "oci"
	BackendGojaLocal BackendKind = "goja-local"
	BackendWASM      BackendKind = "wasm"
)
