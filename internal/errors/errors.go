// Package errors defines the engine's error taxonomy: every operation
// that crosses a component boundary (store, ingest, search, capture,
// link engine) returns either nil or a *KernelError carrying a Kind
// from codes.go. Callers at the edges (CLI, MCP adapter) map Kind to
// an exit code or protocol error without inspecting message text.
package errors

import (
	"errors"
	"fmt"
)

// KernelError is the concrete error type returned by engine operations.
type KernelError struct {
	Kind       Kind
	Message    string
	Details    map[string]string
	Cause      error
	Retryable  bool
	Suggestion string
}

// Error implements the error interface.
func (e *KernelError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is/errors.As to see through to the cause.
func (e *KernelError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a *KernelError with the same Kind.
func (e *KernelError) Is(target error) bool {
	var other *KernelError
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// WithDetail attaches a key/value detail and returns the receiver for
// chaining.
func (e *KernelError) WithDetail(key, value string) *KernelError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion attaches an operator-facing hint and returns the
// receiver for chaining.
func (e *KernelError) WithSuggestion(s string) *KernelError {
	e.Suggestion = s
	return e
}

// New creates a KernelError of the given Kind with a formatted message.
func New(kind Kind, format string, args ...any) *KernelError {
	return &KernelError{
		Kind:      kind,
		Message:   fmt.Sprintf(format, args...),
		Retryable: isRetryableKind(kind),
	}
}

// Wrap creates a KernelError of the given Kind around an existing
// error, preserving it as Cause for errors.Unwrap/errors.Is chains.
func Wrap(kind Kind, cause error, format string, args ...any) *KernelError {
	return &KernelError{
		Kind:      kind,
		Message:   fmt.Sprintf(format, args...),
		Cause:     cause,
		Retryable: isRetryableKind(kind),
	}
}

// Locked is a constructor shorthand for the LOCKED kind, used by the
// locking package when a bounded acquisition attempt times out.
func Locked(resource string, cause error) *KernelError {
	return Wrap(KindLocked, cause, "could not acquire lock on %s", resource).
		WithDetail("resource", resource)
}

// NotFound is a constructor shorthand for the NOT_FOUND kind.
func NotFound(kind, id string) *KernelError {
	return New(KindNotFound, "%s not found: %s", kind, id).
		WithDetail("entity", kind).
		WithDetail("id", id)
}

// InvalidPath is a constructor shorthand for the INVALID_PATH kind,
// used by the path guard.
func InvalidPath(path, reason string) *KernelError {
	return New(KindInvalidPath, "invalid path %q: %s", path, reason).
		WithDetail("path", path)
}

// IsKind reports whether err is a *KernelError of the given Kind.
func IsKind(err error, kind Kind) bool {
	var ke *KernelError
	if errors.As(err, &ke) {
		return ke.Kind == kind
	}
	return false
}

// IsRetryable reports whether err is a *KernelError marked retryable.
func IsRetryable(err error) bool {
	var ke *KernelError
	if errors.As(err, &ke) {
		return ke.Retryable
	}
	return false
}

// GetKind returns the Kind of err, or KindRuntime if err is not a
// *KernelError.
func GetKind(err error) Kind {
	var ke *KernelError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return KindRuntime
}

// Recover turns a recovered panic value into a *KernelError of kind
// RUNTIME. The job manager (internal/jobs) installs it via a deferred
// call around each job's function, so a panic inside a background job
// fails that job instead of taking down the host process. Engine calls
// that do not run as a job are not wrapped.
func Recover(component string, r any) *KernelError {
	return New(KindRuntime, "recovered panic in %s: %v", component, r)
}
