// Package toolerrors provides a structured error type for tool invocation
// failures. ToolError preserves message and causal context while remaining
// serialization-friendly (plain strings, no interface values) so it can
// cross process/transport boundaries and still support errors.Is/As.
package toolerrors

import (
	"errors"
	"fmt"
)

// ToolError represents a structured tool failure. Errors may be nested via
// Cause to retain diagnostics across retries and provider round-trips.
type ToolError struct {
	Message string
	Cause   *ToolError
}

// New constructs a ToolError with the given message.
func New(message string) *ToolError {
	if message == "" {
		message = "tool error"
	}
	return &ToolError{Message: message}
}

// NewWithCause constructs a ToolError wrapping an underlying error. The
// cause is converted into a ToolError chain so it survives serialization.
func NewWithCause(message string, cause error) *ToolError {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &ToolError{Message: message, Cause: FromError(cause)}
}

// FromError converts an arbitrary error into a ToolError chain.
func FromError(err error) *ToolError {
	if err == nil {
		return nil
	}
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	return &ToolError{Message: err.Error(), Cause: FromError(errors.Unwrap(err))}
}

// Errorf formats a message and returns it as a ToolError.
func Errorf(format string, args ...any) *ToolError {
	return New(fmt.Sprintf(format, args...))
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Unwrap supports errors.Is/As across the cause chain.
func (e *ToolError) Unwrap() error {
	if e == nil || e.Cause == nil {
		return nil
	}
	return e.Cause
}
