package sandbox

import "context"

// SandboxRunner is the component the Bridge/Invocation call into. It
// has no policy of its own beyond selecting a Backend; the hard
// behavior (hardening profile, NDJSON multiplexing, timeout) lives in
// the Backend implementations.
type SandboxRunner struct {
	Backend Backend
}

// NewSandboxRunner wraps backend for the contract spec.md §4.3 names.
func NewSandboxRunner(backend Backend) *SandboxRunner {
	return &SandboxRunner{Backend: backend}
}

// Execute runs spec to completion or timeout.
func (r *SandboxRunner) Execute(ctx context.Context, spec RunSpec) (*SandboxResult, error) {
	return r.Backend.Run(ctx, spec)
}
