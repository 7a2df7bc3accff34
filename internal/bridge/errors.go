// Package bridge wires the pool, catalog, invocation, and sandbox
// runner into the single RunPython entry point and shapes its response.
package bridge

import "fmt"

// SandboxError is returned when the sandbox process exits non-zero or
// otherwise fails to run user code cleanly. Grounded on the original
// source's SandboxError.
type SandboxError struct {
	Message string
	Stdout  string
	Stderr  string
}

func (e *SandboxError) Error() string { return e.Message }

// TimeoutError describes user code exceeding the requested timeout.
// RunPython does not return it; it reports timeouts from
// sandbox.ErrTimeout in its response instead. Grounded on the original source's SandboxTimeout, a
// SandboxError subclass; we model that as a distinct type carrying the
// same Stdout/Stderr fields instead of Go's lack of exception
// hierarchies.
type TimeoutError struct {
	Seconds int
	Stdout  string
	Stderr  string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("execution exceeded %ds", e.Seconds)
}

// ValidationError is returned for malformed call_tool arguments, never
// reaching the sandbox at all.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NotFoundError describes an unknown tool name. Callers report that
// case through UnknownToolResponse; nothing in this package returns it.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }
