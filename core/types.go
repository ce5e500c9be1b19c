// Package core implements the Pausable Execution Core (C8): it drives one
// execution from first dispatch through every pause/resume cycle, wiring
// together the Program Rewriter (C6), the Sandbox Host (C7), the
// Paused-State Store (C4), the Provenance Registry (C1) and the Policy
// Engine (C9).
package core

import (
	"encoding/json"
	"time"

	"github.com/look4regev/agent-tool-protocol-sub002"
	"github.com/look4regev/agent-tool-protocol-sub002/execution"
	"github.com/look4regev/agent-tool-protocol-sub002/hooks"
)

// ExecuteRequest starts a new execution.
type ExecuteRequest struct {
	SessionID atp.SessionID
	ClientID  atp.ClientID
	Tenant    string
	Source    string
	// Scope names the catalog groups this execution's credentials grant
	// access to; empty falls back to the custom group (Open Question 2).
	Scope []string
	// Bus, if non-nil, receives hooks.Event as the run progresses — wired
	// by the /api/execute-stream transport handler, left nil everywhere
	// else since publishing has no effect without a subscriber.
	Bus hooks.Bus
	// Config, if non-nil, overrides the Core's own resource/provenance
	// defaults for this execution only. A zero-valued field within Config
	// (0 or "") falls back to the Core's default; AllowedGroups only ever narrows Scope,
	// never widens it.
	Config *ExecConfig

	// ProvenanceHints pre-populates the new execution's provenance registry
	// with the labels a prior execution's ProvenanceTokens reported for a
	// value, so a label survives that value's round trip through JSON
	// serialisation into this program's source.
	ProvenanceHints []ProvenanceHint
}

// ProvenanceHint re-attaches a label set to an opaque Token a prior
// execution's ProvenanceTokens handed back for one of its result values.
type ProvenanceHint struct {
	Token  string
	Labels []string
}

// ProvenanceToken is a server-computed fingerprint for a labelled value
// surfacing in a completed execution's result, meant to be echoed back
// verbatim as a ProvenanceHint on a later execution that receives the same
// value.
type ProvenanceToken struct {
	Token  string
	Labels []string
}

// ExecConfig is a per-request override of the server's resource and
// provenance defaults, carried in the wire body of /api/execute.
type ExecConfig struct {
	Timeout        time.Duration
	MaxLLMCalls    int
	MaxMemoryBytes int64
	ProvenanceMode string
	// AllowedGroups, if non-empty, narrows the session's own scope down to
	// the intersection of the two; it can never grant access to a group
	// the session itself wasn't scoped to.
	AllowedGroups []string
}

// ResumeRequest supplies the result(s) of a prior execution's pending
// callback(s). Each result is matched to its pending callback by CallID, so
// the order of Results does not matter; every pending callback needs one.
type ResumeRequest struct {
	ExecutionID atp.ExecutionID
	Results     []CallbackResult
	Bus         hooks.Bus
}

// CallbackResult is one resolved pausing call, keyed back to the CallID the
// corresponding CallbackRequest named.
type CallbackResult struct {
	CallID atp.CallbackID
	Result json.RawMessage
}

// CallbackRequest is the structured shape handed back to the caller when an
// execution pauses, mirroring spec.md's needsCallback/needsCallbacks.
type CallbackRequest struct {
	ID        atp.CallbackID
	BatchID   atp.CallbackID
	Kind      execution.CallbackKind
	Operation string
	Payload   json.RawMessage
}

// Stats reports resource usage for one Execute/Resume call.
type Stats struct {
	Duration       time.Duration
	LLMCallsCount  int
	ApprovalCalls  int
	ToolCallsCount int
	// MemoryUsed is the largest approximate interpreter footprint observed
	// across the whole execution, including prior pause/resume cycles.
	MemoryUsed int64
}

// ExecutionResult is the shape returned to the HTTP boundary after every
// Execute or Resume call.
type ExecutionResult struct {
	ExecutionID atp.ExecutionID
	Status      execution.Status

	Result json.RawMessage
	Error  *ExecutionError

	// NeedsCallback is set for a single pending pausing call; NeedsCallbacks
	// is set instead when the pause was a batch from a parallel join.
	NeedsCallback  *CallbackRequest
	NeedsCallbacks []CallbackRequest

	// ProvenanceTokens reports the labels attached to the completed
	// execution's own return value, if any, so a caller chaining a second
	// execution over this result can hand them back as ProvenanceHints.
	ProvenanceTokens []ProvenanceToken

	Stats Stats
}

// ExecutionError is the error shape carried on a failed ExecutionResult.
type ExecutionError struct {
	Code      string
	Message   string
	Retryable bool
}
