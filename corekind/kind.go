// Package corekind classifies execution-core failures into a small, closed
// set of abstract kinds so callers can make retry/interrupt decisions on
// data rather than on error-string matching. No error of this package ever
// crosses a plan boundary as a panic; it is always returned as a value.
package corekind

import "fmt"

// Kind is one of the abstract failure categories a plan step can fail with.
type Kind string

const (
	// Interrupted means the step observed a pending interruption request
	// and unwound cooperatively before completing.
	Interrupted Kind = "INTERRUPTED"
	// LLMTransient means the model call failed in a way judged safe to
	// retry (timeout, rate limit, malformed-but-recoverable response).
	LLMTransient Kind = "LLM_TRANSIENT"
	// LLMToolless means the model produced no tool calls and no usable
	// final answer after exhausting retries.
	LLMToolless Kind = "LLM_TOOLLESS"
	// LLMFatal means the model call failed in a way judged unsafe to
	// retry (e.g. a fatal provider error, auth failure).
	LLMFatal Kind = "LLM_FATAL"
	// ToolNotFound means a requested tool key could not be resolved
	// against the registry.
	ToolNotFound Kind = "TOOL_NOT_FOUND"
	// ToolArgConvert means a tool's arguments could not be converted to
	// the shape the tool implementation expects.
	ToolArgConvert Kind = "TOOL_ARG_CONVERT"
	// ToolExec means a resolved tool's handler returned an error during
	// execution.
	ToolExec Kind = "TOOL_EXEC"
	// FormTimeout means a form-input request went unanswered past its
	// deadline.
	FormTimeout Kind = "FORM_TIMEOUT"
	// PlanFatal means the plan cannot make further progress and must
	// terminate.
	PlanFatal Kind = "PLAN_FATAL"
)

// retryable records, per kind, whether the default policy considers the
// failure safe to retry without operator intervention.
var retryable = map[Kind]bool{
	Interrupted:    false,
	LLMTransient:   true,
	LLMToolless:    false,
	LLMFatal:       false,
	ToolNotFound:   false,
	ToolArgConvert: true,
	ToolExec:       false,
	FormTimeout:    false,
	PlanFatal:      false,
}

// Retryable reports whether the default policy treats errors of kind k as
// safe to retry.
func (k Kind) Retryable() bool {
	return retryable[k]
}

// CoreError wraps a causing error with an abstract Kind, giving callers a
// stable value to switch on instead of parsing error strings.
type CoreError struct {
	Kind  Kind
	Err   error
	Retry bool
}

// New builds a CoreError for kind k wrapping err. Retry defaults to the
// kind's default retryability and may be overridden by callers that have
// more context (e.g. an exhausted retry budget).
func New(kind Kind, err error) *CoreError {
	return &CoreError{Kind: kind, Err: err, Retry: kind.Retryable()}
}

// Error implements the error interface.
func (e *CoreError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s", e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap supports errors.Is/As against the wrapped cause.
func (e *CoreError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
