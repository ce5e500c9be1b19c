// Package atperrors provides the structured, chainable error type returned
// by every component of the execution core, and the stable machine codes
// carried in an ExecutionResult's error field.
package atperrors

import "fmt"

// Code is a stable machine-readable error category. Clients switch on Code,
// never on Message.
type Code string

const (
	// CodeValidation marks a request that failed static validation (bad
	// resume body, unknown tool, malformed config override).
	CodeValidation Code = "validation_failed"
	// CodeSandboxViolation marks code rejected by the sandbox's static or
	// dynamic checks (forbidden construct, prototype reflection, global
	// access, an unrecognized capability path).
	CodeSandboxViolation Code = "security_violation"
	// CodeTimeout marks a run that exceeded its wall-clock budget.
	CodeTimeout Code = "timeout"
	// CodeMemoryExceeded marks a run that exceeded its heap-memory
	// ceiling.
	CodeMemoryExceeded Code = "memory_exceeded"
	// CodeLLMCallsExceeded marks a run that exceeded its atp.llm
	// call-count budget.
	CodeLLMCallsExceeded Code = "llm_calls_exceeded"
	// CodeParseError marks a program that failed to parse.
	CodeParseError Code = "parse_error"
	// CodeReferenceError marks a reference to an undeclared identifier.
	CodeReferenceError Code = "reference_error"
	// CodeTypeError marks an operation performed on a value of the wrong
	// type (e.g. indexing a non-object, iterating a non-array).
	CodeTypeError Code = "type_error"
	// CodeNetworkError marks a genuine transport-level failure reaching a
	// tool or model backend, distinct from CodeToolError's business-logic
	// error values.
	CodeNetworkError Code = "network_error"
	// CodeLoopDetected marks a while/for-of loop that exceeded the
	// maximum-iterations guard, indicating an unbounded loop.
	CodeLoopDetected Code = "loop_detected"
	// CodeServiceNotProvided marks a resume where the client promised a
	// capability at /api/init but returned an explicit service-not-provided
	// error marker instead of a result; terminal, unlike an ordinary tool
	// error value.
	CodeServiceNotProvided Code = "service_not_provided"
	// CodeExecutionFailed is the default category for a program failure
	// that doesn't fall into any more specific category above.
	CodeExecutionFailed Code = "execution_failed"

	// CodeToolError marks a tool or service invocation that itself
	// returned an error value; this is always replayed as a value, never
	// promoted to a terminal failure on its own.
	CodeToolError Code = "tool_error"
	// CodePolicyDenied marks a call blocked by the policy engine.
	CodePolicyDenied Code = "policy_denied"
	// CodeNotFound marks a missing execution, session or resource.
	CodeNotFound Code = "not_found"
	// CodeConflict marks a state transition that isn't valid, such as
	// resuming an execution that already completed.
	CodeConflict Code = "conflict"
	// CodeExpired marks an execution or session past its TTL.
	CodeExpired Code = "expired"
	// CodeInternal marks an unexpected server-side failure.
	CodeInternal Code = "internal"
)

// Error is the structured error type threaded through the execution core. It
// chains to a cause the way toolerrors.ToolError does, so errors.Is/As keep
// working across the chain.
type Error struct {
	Code      Code
	Message   string
	Retryable bool
	Cause     error
}

// New builds an Error with no cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error that chains to cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Error implements the error interface, including the cause chain.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap exposes the cause for errors.Is/As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// WithRetryable returns a copy of e with Retryable set.
func (e *Error) WithRetryable(retryable bool) *Error {
	cp := *e
	cp.Retryable = retryable
	return &cp
}
