package sandbox

import (
	"encoding/json"
	"time"

	"github.com/look4regev/agent-tool-protocol-sub002"
	"github.com/look4regev/agent-tool-protocol-sub002/atperrors"
	"github.com/look4regev/agent-tool-protocol-sub002/execution"
)

// PauseSignal is returned by Run when the program hit one or more
// unresolved pausing calls. Batched holds every newly-issued
// execution.CallbackRecord that must be satisfied before the execution can
// resume; they all share BatchID when they came from one atp.all(...) join.
type PauseSignal struct {
	Batched []execution.CallbackRecord
}

// env is a single lexical scope. Programs in this grammar have no function
// declarations, so scopes come only from the top level, loop bodies,
// if/else branches and mapped atp.all elements; env.parent chains outward
// for name resolution.
type env struct {
	vars   map[string]any
	parent *env
}

func newEnv(parent *env) *env {
	return &env{vars: map[string]any{}, parent: parent}
}

func (e *env) get(name string) (any, bool) {
	for cur := e; cur != nil; cur = cur.parent {
		if v, ok := cur.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// set assigns to an existing binding anywhere in the chain, or creates one
// in the current scope if none exists yet. `let` uses define instead.
func (e *env) set(name string, value any) {
	for cur := e; cur != nil; cur = cur.parent {
		if _, ok := cur.vars[name]; ok {
			cur.vars[name] = value
			return
		}
	}
	e.vars[name] = value
}

func (e *env) define(name string, value any) {
	e.vars[name] = value
}

// Interpreter executes a rewritten Program against a host Context, replaying
// already-resolved pausing calls from history and pausing again on the
// first newly-encountered one.
type Interpreter struct {
	ctx     *Context
	history map[atp.CallbackID]execution.CallbackRecord

	// checkpoints is seeded from the execution record's prior checkpoints
	// and updated in place as loops complete iterations, so the core can
	// read back the post-run state to persist on the next pause.
	checkpoints map[string]execution.LoopCheckpoint

	newCalls []execution.CallbackRecord
	llmCalls int
	start    time.Time

	// memPeak is the largest approximate heap footprint observed by
	// checkMemory so far during this Run.
	memPeak int64
}

// New builds an Interpreter. history is the execution's prior callback log
// keyed by CallbackID; checkpoints is the prior loop-progress table.
func New(ctx *Context, history []execution.CallbackRecord, checkpoints []execution.LoopCheckpoint) *Interpreter {
	h := make(map[atp.CallbackID]execution.CallbackRecord, len(history))
	llmCalls := 0
	for _, c := range history {
		h[c.ID] = c
		if c.Kind == execution.CallbackLLM {
			llmCalls++
		}
	}
	cp := make(map[string]execution.LoopCheckpoint, len(checkpoints))
	for _, c := range checkpoints {
		cp[c.LoopID] = c
	}
	now := ctx.Now
	if now == nil {
		now = time.Now
	}
	return &Interpreter{ctx: ctx, history: h, checkpoints: cp, llmCalls: llmCalls, start: now()}
}

// Checkpoints returns the interpreter's current loop-progress table, to be
// persisted onto the execution record when the run pauses or completes.
func (in *Interpreter) Checkpoints() []execution.LoopCheckpoint {
	out := make([]execution.LoopCheckpoint, 0, len(in.checkpoints))
	for _, c := range in.checkpoints {
		out = append(out, c)
	}
	return out
}

// NewCallbacks returns every pausing call newly issued during the most
// recent Run, whether or not the run ultimately paused on them (a run can
// issue zero new calls and simply complete).
func (in *Interpreter) NewCallbacks() []execution.CallbackRecord {
	return in.newCalls
}

func (in *Interpreter) now() time.Time {
	if in.ctx.Now != nil {
		return in.ctx.Now()
	}
	return time.Now()
}

func (in *Interpreter) checkWallClock() error {
	if in.ctx.Limits.MaxWallClock <= 0 {
		return nil
	}
	if in.now().Sub(in.start) > in.ctx.Limits.MaxWallClock {
		return atperrors.New(atperrors.CodeTimeout, "wall-clock limit exceeded")
	}
	return nil
}

// checkMemory estimates the interpreter's current footprint from the
// lexical scope chain plus the accumulated checkpoint/callback state, and
// rejects the run once it crosses ctx.Limits.MaxMemoryBytes. This is an
// approximation (a JSON-marshaled size proxy, not an actual heap
// measurement) since the interpreter has no access to Go runtime memory
// stats scoped to a single run.
func (in *Interpreter) checkMemory(e *env) error {
	if in.ctx.Limits.MaxMemoryBytes <= 0 {
		return nil
	}
	used := in.approxMemoryBytes(e)
	if used > in.memPeak {
		in.memPeak = used
	}
	if used > in.ctx.Limits.MaxMemoryBytes {
		return atperrors.New(atperrors.CodeMemoryExceeded, "heap-memory ceiling exceeded")
	}
	return nil
}

func (in *Interpreter) approxMemoryBytes(e *env) int64 {
	var total int64
	if state, err := json.Marshal(flatten(e)); err == nil {
		total += int64(len(state))
	}
	for _, cb := range in.history {
		total += int64(len(cb.Request)) + int64(len(cb.Result))
	}
	for _, cb := range in.newCalls {
		total += int64(len(cb.Request)) + int64(len(cb.Result))
	}
	for _, cp := range in.checkpoints {
		total += int64(len(cp.State))
	}
	return total
}

// MemoryUsed reports the largest approximate footprint observed across
// every Run call made against this Interpreter so far, for
// Core.stats().memoryUsed.
func (in *Interpreter) MemoryUsed() int64 {
	return in.memPeak
}

// toJSON is a small helper shared by the call-evaluation paths.
func toJSON(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}
