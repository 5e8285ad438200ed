// Package mcpadapter exposes search, capture, sync, and graph as MCP
// tools (spec §6) purely by calling the corresponding internal/engine
// operations. Error mapping follows the teacher's internal/mcp
// MapError: every *errors.KernelError is turned into the
// "CODE: message" envelope spec §6 calls for, keyed by Kind rather
// than by matching message text.
package mcpadapter

import (
	"context"
	"errors"
	"fmt"

	kerrors "github.com/kestrelkb/kestrel/internal/errors"
)

// ToolError is the structured {error, message} envelope of spec §6,
// serialized over the wire as "CODE: message".
type ToolError struct {
	Code    string
	Message string
}

// Error implements the error interface as "CODE: message", the exact
// wire form spec §6 says the boundary parses back into {error,
// message}.
func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// MapError converts an engine error into the tool envelope. Unknown
// error shapes (which should not occur: every engine operation returns
// *errors.KernelError or nil) map to RUNTIME rather than panicking.
func MapError(err error) *ToolError {
	if err == nil {
		return nil
	}
	var ke *kerrors.KernelError
	if errors.As(err, &ke) {
		return &ToolError{Code: string(ke.Kind), Message: ke.Message}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ToolError{Code: string(kerrors.KindRuntime), Message: "request timed out"}
	}
	if errors.Is(err, context.Canceled) {
		return &ToolError{Code: string(kerrors.KindRuntime), Message: "request was canceled"}
	}
	return &ToolError{Code: string(kerrors.KindRuntime), Message: err.Error()}
}
