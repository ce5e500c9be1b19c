// Package execution defines the durable execution record and callback log
// shared by the Paused-State Store (C4), the Program Rewriter (C6) and the
// Pausable Execution Core (C8). It is the data model section of the system:
// no behavior lives here, only the shapes every component agrees on.
package execution

import (
	"encoding/json"
	"time"

	"github.com/look4regev/agent-tool-protocol-sub002"
)

// Status is the lifecycle state of an Execution.
type Status string

const (
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"

	// The following are specific terminal failure states a run can land
	// on instead of the generic StatusFailed, each carrying its own
	// atperrors.Code category.
	StatusTimeout           Status = "timeout"
	StatusMemoryExceeded    Status = "memory_exceeded"
	StatusLLMCallsExceeded  Status = "llm_calls_exceeded"
	StatusSecurityViolation Status = "security_violation"
	StatusParseError        Status = "parse_error"
	StatusNetworkError      Status = "network_error"
	StatusLoopDetected      Status = "loop_detected"
)

// CallbackKind identifies what kind of pausing call produced a
// CallbackRecord. Each kind maps to one atp.* namespace capability that can
// only be satisfied by the client.
type CallbackKind string

const (
	CallbackLLM       CallbackKind = "llm"
	CallbackApproval  CallbackKind = "approval"
	CallbackTool      CallbackKind = "tool"
	CallbackEmbedding CallbackKind = "embedding"
)

// CallbackRecord is one pausing call made by a program, and (once resumed)
// its result. CallbackID is stable across rewrites of the same source and
// across resumes, so a replayed program can match a call site to the
// correct logged result instead of re-issuing the call.
type CallbackRecord struct {
	ID      atp.CallbackID
	BatchID atp.CallbackID // shared by calls pausing together inside one parallel join; equals ID for unbatched calls
	Kind    CallbackKind

	// Request is the structured call the client must satisfy, shaped
	// {"path": <dotted callee path>, "payload": <call argument>}, e.g.
	// {"path": "atp.llm", "payload": {"prompt": "..."}} for CallbackLLM.
	Request json.RawMessage

	// Result is nil until the client resumes with an answer. A tool/service
	// error is represented as a Result value of the shape
	// {"__error":true,"message":"..."}, never as a terminal Execution
	// failure on its own (Open Question 1).
	Result json.RawMessage

	RequestedAt time.Time
	ResolvedAt  time.Time
}

// Pending reports whether this callback is still awaiting a result.
func (c CallbackRecord) Pending() bool { return c.Result == nil }

// LoopCheckpoint records the resumable position of one individually
// checkpointed loop within a program, keyed by the rewriter's stable
// per-loop identifier. It lets the interpreter skip iterations already
// completed on replay instead of re-running the whole loop from iteration
// zero.
type LoopCheckpoint struct {
	LoopID    string
	Iteration int
	// State is interpreter-local loop state (accumulator bindings) needed
	// to resume mid-loop; opaque outside the sandbox.
	State json.RawMessage
}

// Record is the durable representation of one execution, from first
// dispatch through every pause/resume cycle to a terminal state.
type Record struct {
	ID        atp.ExecutionID
	SessionID atp.SessionID
	ClientID  atp.ClientID
	Tenant    string
	// Scope lists the group names the originating session's credentials
	// granted access to at dispatch time, persisted so a resumed execution
	// enforces the same restriction the initial Execute call did.
	Scope []string

	// Source is the original program text submitted by the caller. Resume
	// replays by re-running Source from the top with History supplying
	// answers to calls already resolved, rather than restoring an
	// interpreter snapshot.
	Source string

	Status Status

	// History is every CallbackRecord issued so far, resolved or pending,
	// in issuance order. On resume the interpreter replays deterministically
	// through History before reaching new code.
	History []CallbackRecord

	// Pending holds the callback(s) the execution is currently blocked on.
	// More than one entry means a batched pause from a parallel join.
	Pending []atp.CallbackID

	Checkpoints []LoopCheckpoint

	// Config is the resolved per-execution resource/provenance
	// configuration: server defaults as of dispatch time, overridden
	// field-by-field by anything the caller supplied in its /api/execute
	// config body. Fixed at Execute time and persisted so a later Resume
	// enforces exactly the same limits, even if the server's own defaults
	// change in the meantime.
	Config RecordConfig

	// PeakMemoryBytes is the largest approximate interpreter footprint
	// observed across every Run so far, persisted so stats().memoryUsed
	// survives a pause/resume round trip.
	PeakMemoryBytes int64

	// ProvenanceSnapshot is the Provenance Registry's serialized state at
	// the moment of the most recent pause, restored verbatim on resume.
	ProvenanceSnapshot json.RawMessage

	Result    json.RawMessage
	Error     *RecordError
	CreatedAt time.Time
	UpdatedAt time.Time
	PausedAt  time.Time
	ExpiresAt time.Time
}

// RecordConfig is the per-execution override of the server's resource and
// provenance defaults, spec's data model names alongside the execution
// record itself: timeout, memory cap, max LLM calls and provenance mode.
// Immutable once the record is created.
type RecordConfig struct {
	MaxWallClock   time.Duration
	MaxLLMCalls    int
	MaxMemoryBytes int64
	ProvenanceMode string
}

// RecordError is the terminal error shape persisted on a failed Record.
type RecordError struct {
	Code    string
	Message string
}

// CallbackByID finds a callback record by ID.
func (r Record) CallbackByID(id atp.CallbackID) (CallbackRecord, bool) {
	for _, c := range r.History {
		if c.ID == id {
			return c, true
		}
	}
	return CallbackRecord{}, false
}

// IsPending reports whether id is among the execution's currently
// outstanding callbacks.
func (r Record) IsPending(id atp.CallbackID) bool {
	for _, p := range r.Pending {
		if p == id {
			return true
		}
	}
	return false
}
