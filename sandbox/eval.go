package sandbox

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/look4regev/agent-tool-protocol-sub002"
	"github.com/look4regev/agent-tool-protocol-sub002/atperrors"
	"github.com/look4regev/agent-tool-protocol-sub002/catalog"
	"github.com/look4regev/agent-tool-protocol-sub002/execution"
	"github.com/look4regev/agent-tool-protocol-sub002/provenance"
	"github.com/look4regev/agent-tool-protocol-sub002/rewriter"
)

// ctrl threads the three ways statement execution can end: falling through
// to the next statement (zero value), hitting a return, or hitting a pause.
type ctrl struct {
	returned bool
	value    any
	pause    *PauseSignal
}

// Run interprets prog from the top. result is the program's returned value
// (nil if it fell off the end without a return statement); pause is set
// when the program suspended on one or more new pausing calls.
func (in *Interpreter) Run(prog *rewriter.Program) (result any, pause *PauseSignal, err error) {
	top := newEnv(nil)
	c, err := in.execStmts(prog.Statements, top)
	if err != nil {
		return nil, nil, err
	}
	if c.pause != nil {
		return nil, c.pause, nil
	}
	return c.value, nil, nil
}

func (in *Interpreter) execStmts(stmts []rewriter.Stmt, e *env) (ctrl, error) {
	for _, s := range stmts {
		c, err := in.execStmt(s, e)
		if err != nil {
			return ctrl{}, err
		}
		if c.pause != nil || c.returned {
			return c, nil
		}
	}
	return ctrl{}, nil
}

func (in *Interpreter) execStmt(s rewriter.Stmt, e *env) (ctrl, error) {
	if err := in.checkWallClock(); err != nil {
		return ctrl{}, err
	}
	if err := in.checkMemory(e); err != nil {
		return ctrl{}, err
	}

	switch n := s.(type) {
	case rewriter.LetStmt:
		v, pause, err := in.eval(n.Expr, e)
		if err != nil || pause != nil {
			return ctrl{pause: pause}, err
		}
		e.define(n.Name, v)
		return ctrl{}, nil

	case rewriter.ExprStmt:
		_, pause, err := in.eval(n.Expr, e)
		if err != nil || pause != nil {
			return ctrl{pause: pause}, err
		}
		return ctrl{}, nil

	case rewriter.IfStmt:
		cond, pause, err := in.eval(n.Cond, e)
		if err != nil || pause != nil {
			return ctrl{pause: pause}, err
		}
		if truthy(cond) {
			return in.execStmts(n.Then, newEnv(e))
		}
		return in.execStmts(n.Else, newEnv(e))

	case rewriter.WhileStmt:
		return in.execWhile(n, e)

	case rewriter.ForOfStmt:
		return in.execForOf(n, e)

	case rewriter.ReturnStmt:
		if n.Expr == nil {
			return ctrl{returned: true}, nil
		}
		v, pause, err := in.eval(n.Expr, e)
		if err != nil || pause != nil {
			return ctrl{pause: pause}, err
		}
		return ctrl{returned: true, value: v}, nil
	}
	return ctrl{}, fmt.Errorf("sandbox: unsupported statement %T", s)
}

// maxLoopIterations caps a single while/for-of loop's iteration count,
// catching an unbounded loop (e.g. `while (true) {}`) instead of spinning
// forever.
const maxLoopIterations = 1_000_000

func (in *Interpreter) execWhile(n rewriter.WhileStmt, e *env) (ctrl, error) {
	iter := in.resumeIteration(n.LoopID, e)

	for {
		if iter >= maxLoopIterations {
			return ctrl{}, atperrors.Newf(atperrors.CodeLoopDetected, "loop %q exceeded the maximum-iterations guard (%d)", n.LoopID, maxLoopIterations)
		}
		cond, pause, err := in.eval(n.Cond, e)
		if err != nil || pause != nil {
			return ctrl{pause: pause}, err
		}
		if !truthy(cond) {
			break
		}

		body := newEnv(e)
		c, err := in.execStmts(n.Body, body)
		if err != nil {
			return ctrl{}, err
		}
		if c.pause != nil {
			in.saveCheckpoint(n.LoopID, iter, e)
			return c, nil
		}
		if c.returned {
			return c, nil
		}
		iter++
		in.saveCheckpoint(n.LoopID, iter, e)
	}
	return ctrl{}, nil
}

func (in *Interpreter) execForOf(n rewriter.ForOfStmt, e *env) (ctrl, error) {
	iterable, pause, err := in.eval(n.Iterable, e)
	if err != nil || pause != nil {
		return ctrl{pause: pause}, err
	}
	items, ok := iterable.([]any)
	if !ok {
		return ctrl{}, atperrors.Newf(atperrors.CodeTypeError, "for-of target is not an array")
	}

	start := in.resumeIteration(n.LoopID, e)
	for i := start; i < len(items); i++ {
		if i >= maxLoopIterations {
			return ctrl{}, atperrors.Newf(atperrors.CodeLoopDetected, "loop %q exceeded the maximum-iterations guard (%d)", n.LoopID, maxLoopIterations)
		}
		body := newEnv(e)
		body.define(n.Var, items[i])

		c, err := in.execStmts(n.Body, body)
		if err != nil {
			return ctrl{}, err
		}
		if c.pause != nil {
			in.saveCheckpoint(n.LoopID, i, e)
			return c, nil
		}
		if c.returned {
			return c, nil
		}
		in.saveCheckpoint(n.LoopID, i+1, e)
	}
	return ctrl{}, nil
}

// resumeIteration restores a loop's prior progress from in.checkpoints, if
// any, and returns the iteration index to resume at (0 if none).
func (in *Interpreter) resumeIteration(loopID string, e *env) int {
	cp, ok := in.checkpoints[loopID]
	if !ok {
		return 0
	}
	var state map[string]any
	if len(cp.State) > 0 {
		_ = json.Unmarshal(cp.State, &state)
	}
	for k, v := range state {
		e.set(k, v)
	}
	return cp.Iteration
}

// saveCheckpoint snapshots the loop-carried bindings visible at e so the
// loop can resume at iteration without re-running everything before it.
func (in *Interpreter) saveCheckpoint(loopID string, iteration int, e *env) {
	flat := flatten(e)
	state, err := json.Marshal(flat)
	if err != nil {
		return
	}
	in.checkpoints[loopID] = execution.LoopCheckpoint{
		LoopID:    loopID,
		Iteration: iteration,
		State:     state,
	}
}

func flatten(e *env) map[string]any {
	var chain []*env
	for cur := e; cur != nil; cur = cur.parent {
		chain = append(chain, cur)
	}
	out := map[string]any{}
	for i := len(chain) - 1; i >= 0; i-- {
		for k, v := range chain[i].vars {
			out[k] = v
		}
	}
	return out
}

func (in *Interpreter) eval(expr rewriter.Expr, e *env) (any, *PauseSignal, error) {
	switch n := expr.(type) {
	case rewriter.NumberLit:
		return n.Value, nil, nil
	case rewriter.StringLit:
		return n.Value, nil, nil
	case rewriter.BoolLit:
		return n.Value, nil, nil
	case rewriter.NullLit:
		return nil, nil, nil

	case rewriter.Ident:
		v, ok := e.get(n.Name)
		if !ok {
			return nil, nil, atperrors.Newf(atperrors.CodeReferenceError, "undefined identifier %q", n.Name)
		}
		return v, nil, nil

	case rewriter.AssignExpr:
		v, pause, err := in.eval(n.Expr, e)
		if err != nil || pause != nil {
			return nil, pause, err
		}
		e.set(n.Name, v)
		return v, nil, nil

	case rewriter.UnaryExpr:
		x, pause, err := in.eval(n.X, e)
		if err != nil || pause != nil {
			return nil, pause, err
		}
		switch n.Op {
		case "!":
			return !truthy(x), nil, nil
		case "-":
			return -toNumber(x), nil, nil
		}
		return nil, nil, fmt.Errorf("sandbox: unknown unary operator %q", n.Op)

	case rewriter.BinaryExpr:
		return in.evalBinary(n, e)

	case rewriter.MemberExpr:
		obj, pause, err := in.eval(n.Obj, e)
		if err != nil || pause != nil {
			return nil, pause, err
		}
		m, ok := obj.(map[string]any)
		if !ok {
			return nil, nil, atperrors.Newf(atperrors.CodeTypeError, "cannot read property %q of non-object", n.Prop)
		}
		return m[n.Prop], nil, nil

	case rewriter.ArrayLit:
		out := make([]any, len(n.Elems))
		for i, el := range n.Elems {
			v, pause, err := in.eval(el, e)
			if err != nil || pause != nil {
				return nil, pause, err
			}
			out[i] = v
		}
		return out, nil, nil

	case rewriter.ObjectLit:
		out := make(map[string]any, len(n.Keys))
		for i, k := range n.Keys {
			v, pause, err := in.eval(n.Values[i], e)
			if err != nil || pause != nil {
				return nil, pause, err
			}
			out[k] = v
		}
		return out, nil, nil

	case rewriter.CallExpr:
		return in.evalCall(n, e)

	case rewriter.AllExpr:
		return in.evalAll(n, e)

	case rewriter.MapAllExpr:
		return in.evalMapAll(n, e)
	}
	return nil, nil, fmt.Errorf("sandbox: unsupported expression %T", expr)
}

func (in *Interpreter) evalBinary(n rewriter.BinaryExpr, e *env) (any, *PauseSignal, error) {
	left, pause, err := in.eval(n.Left, e)
	if err != nil || pause != nil {
		return nil, pause, err
	}
	// Short-circuit boolean operators never evaluate the right side when
	// the left side already decides the result.
	if n.Op == "&&" && !truthy(left) {
		return false, nil, nil
	}
	if n.Op == "||" && truthy(left) {
		return true, nil, nil
	}

	right, pause, err := in.eval(n.Right, e)
	if err != nil || pause != nil {
		return nil, pause, err
	}

	switch n.Op {
	case "&&":
		return truthy(right), nil, nil
	case "||":
		return truthy(right), nil, nil
	case "+":
		if ls, ok := left.(string); ok {
			return ls + toString(right), nil, nil
		}
		if rs, ok := right.(string); ok {
			return toString(left) + rs, nil, nil
		}
		return toNumber(left) + toNumber(right), nil, nil
	case "-":
		return toNumber(left) - toNumber(right), nil, nil
	case "*":
		return toNumber(left) * toNumber(right), nil, nil
	case "/":
		return toNumber(left) / toNumber(right), nil, nil
	case "%":
		return float64(int64(toNumber(left)) % int64(toNumber(right))), nil, nil
	case "==", "===":
		return equal(left, right), nil, nil
	case "!=", "!==":
		return !equal(left, right), nil, nil
	case "<":
		return toNumber(left) < toNumber(right), nil, nil
	case "<=":
		return toNumber(left) <= toNumber(right), nil, nil
	case ">":
		return toNumber(left) > toNumber(right), nil, nil
	case ">=":
		return toNumber(left) >= toNumber(right), nil, nil
	}
	return nil, nil, fmt.Errorf("sandbox: unknown binary operator %q", n.Op)
}

// evalCall handles every CallExpr, including the synchronous atp.cache.*
// namespace and the pausing atp.llm/atp.approval/atp.embedding/api.* calls.
func (in *Interpreter) evalCall(call rewriter.CallExpr, e *env) (any, *PauseSignal, error) {
	args := make([]any, len(call.Args))
	for i, a := range call.Args {
		v, pause, err := in.eval(a, e)
		if err != nil || pause != nil {
			return nil, pause, err
		}
		args[i] = v
	}

	if strings.HasPrefix(call.Path, "atp.cache.") {
		return in.evalCacheCall(call.Path, args)
	}

	if !call.IsPausing {
		return nil, nil, atperrors.Newf(atperrors.CodeSandboxViolation, "call to %q is not a recognized capability", call.Path)
	}

	if rec, ok := in.history[atp.CallbackID(call.CallID)]; ok {
		if err := in.verifyReplayMatch(call.CallID, call.Path, args, rec); err != nil {
			return nil, nil, err
		}
		v, pause, err := decodeCallbackResult(rec)
		if err == nil && pause == nil {
			in.tagResult(rec.Kind, call.Path, v)
		}
		return v, pause, err
	}

	rec, err := in.buildCallbackRecord(call, args)
	if err != nil {
		return nil, nil, err
	}
	in.newCalls = append(in.newCalls, rec)
	return nil, &PauseSignal{Batched: []execution.CallbackRecord{rec}}, nil
}

// verifyReplayMatch re-derives the request a history-hit call site would
// build today and checks it is bit-identical (kind × path × payload) to
// what was actually recorded at that call site, catching non-deterministic
// source (a changed literal, a different branch taken) that would
// otherwise silently hand back a stale result for different-looking code.
func (in *Interpreter) verifyReplayMatch(callID, path string, args []any, rec execution.CallbackRecord) error {
	kind, err := kindForPath(path)
	if err != nil {
		return err
	}
	if kind != rec.Kind {
		return atperrors.Newf(atperrors.CodeExecutionFailed, "replay mismatch for call %q: recorded kind %q, re-evaluated kind %q", callID, rec.Kind, kind)
	}

	var payload any
	if len(args) == 1 {
		payload = args[0]
	} else {
		payload = args
	}
	want, err := toJSON(map[string]any{"path": path, "payload": payload})
	if err != nil {
		return err
	}
	if !jsonEqual(want, rec.Request) {
		return atperrors.Newf(atperrors.CodeExecutionFailed, "replay mismatch for call %q: recorded request does not match re-evaluated source", callID)
	}
	return nil
}

// jsonEqual compares two JSON documents by decoded value rather than byte
// content, so key order/whitespace differences don't spuriously trip
// verifyReplayMatch.
func jsonEqual(a, b json.RawMessage) bool {
	var av, bv any
	if err := json.Unmarshal(a, &av); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		return false
	}
	return reflect.DeepEqual(av, bv)
}

func (in *Interpreter) evalAll(n rewriter.AllExpr, e *env) (any, *PauseSignal, error) {
	results := make([]any, len(n.Elems))
	var newOnes []execution.CallbackRecord

	for i, elem := range n.Elems {
		call, ok := elem.(rewriter.CallExpr)
		if !ok {
			v, pause, err := in.eval(elem, e)
			if err != nil || pause != nil {
				return nil, pause, err
			}
			results[i] = v
			continue
		}

		args := make([]any, len(call.Args))
		for j, a := range call.Args {
			v, pause, err := in.eval(a, e)
			if err != nil || pause != nil {
				return nil, pause, err
			}
			args[j] = v
		}

		if rec, ok := in.history[atp.CallbackID(call.CallID)]; ok {
			if err := in.verifyReplayMatch(call.CallID, call.Path, args, rec); err != nil {
				return nil, nil, err
			}
			v, _, err := decodeCallbackResult(rec)
			if err != nil {
				return nil, nil, err
			}
			in.tagResult(rec.Kind, call.Path, v)
			results[i] = v
			continue
		}

		rec, err := in.buildCallbackRecord(call, args)
		if err != nil {
			return nil, nil, err
		}
		newOnes = append(newOnes, rec)
	}

	if len(newOnes) > 0 {
		in.newCalls = append(in.newCalls, newOnes...)
		return nil, &PauseSignal{Batched: newOnes}, nil
	}
	return results, nil, nil
}

// evalMapAll handles the array-mapping batching form
// `atp.all(items.map(x => api.g.op(x)))`. Unlike evalAll, the element count
// is only known once Iterable is evaluated, so each element's CallID is
// derived here as "<BatchID>#<index>" rather than assigned ahead of time by
// the rewriter.
func (in *Interpreter) evalMapAll(n rewriter.MapAllExpr, e *env) (any, *PauseSignal, error) {
	iterable, pause, err := in.eval(n.Iterable, e)
	if err != nil || pause != nil {
		return nil, pause, err
	}
	items, ok := iterable.([]any)
	if !ok {
		return nil, nil, atperrors.Newf(atperrors.CodeTypeError, "atp.all(...map...) target is not an array")
	}

	results := make([]any, len(items))
	var newOnes []execution.CallbackRecord

	for i, item := range items {
		elemEnv := newEnv(e)
		elemEnv.define(n.Param, item)

		args := make([]any, len(n.Args))
		for j, a := range n.Args {
			v, pause, err := in.eval(a, elemEnv)
			if err != nil || pause != nil {
				return nil, pause, err
			}
			args[j] = v
		}

		callID := fmt.Sprintf("%s#%d", n.BatchID, i)
		if rec, ok := in.history[atp.CallbackID(callID)]; ok {
			if err := in.verifyReplayMatch(callID, n.Path, args, rec); err != nil {
				return nil, nil, err
			}
			v, _, err := decodeCallbackResult(rec)
			if err != nil {
				return nil, nil, err
			}
			in.tagResult(rec.Kind, n.Path, v)
			results[i] = v
			continue
		}

		rec, err := in.buildCallbackRecordFor(callID, n.BatchID, n.Path, args)
		if err != nil {
			return nil, nil, err
		}
		newOnes = append(newOnes, rec)
	}

	if len(newOnes) > 0 {
		in.newCalls = append(in.newCalls, newOnes...)
		return nil, &PauseSignal{Batched: newOnes}, nil
	}
	return results, nil, nil
}

func (in *Interpreter) evalCacheCall(path string, args []any) (any, *PauseSignal, error) {
	ctx := in.ctx.background()
	op := strings.TrimPrefix(path, "atp.cache.")
	tenant := in.ctx.Tenant

	switch op {
	case "get":
		key, _ := args[0].(string)
		entry, ok, err := in.ctx.Cache.Get(ctx, tenant, key)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			return nil, nil, nil
		}
		var v any
		if err := json.Unmarshal(entry.Value, &v); err != nil {
			return nil, nil, err
		}
		return v, nil, nil

	case "set":
		key, _ := args[0].(string)
		var ttl time.Duration
		if len(args) > 2 {
			ttl = time.Duration(toNumber(args[2])) * time.Second
		}
		data, err := json.Marshal(args[1])
		if err != nil {
			return nil, nil, err
		}
		if err := in.ctx.Cache.Set(ctx, tenant, key, data, ttl); err != nil {
			return nil, nil, err
		}
		return nil, nil, nil

	case "has":
		key, _ := args[0].(string)
		ok, err := in.ctx.Cache.Has(ctx, tenant, key)
		return ok, nil, err

	case "delete":
		key, _ := args[0].(string)
		return nil, nil, in.ctx.Cache.Delete(ctx, tenant, key)

	case "clear":
		return nil, nil, in.ctx.Cache.Clear(ctx, tenant)
	}
	return nil, nil, atperrors.Newf(atperrors.CodeSandboxViolation, "unknown atp.cache operation %q", op)
}

func (in *Interpreter) buildCallbackRecord(call rewriter.CallExpr, args []any) (execution.CallbackRecord, error) {
	return in.buildCallbackRecordFor(call.CallID, call.BatchID, call.Path, args)
}

// buildCallbackRecordFor is the shared body behind buildCallbackRecord and
// evalMapAll's per-element records: both ultimately just need a CallID,
// BatchID and Path, but evalMapAll derives these from an array index rather
// than from a rewriter.CallExpr.
func (in *Interpreter) buildCallbackRecordFor(callID, batchID, path string, args []any) (execution.CallbackRecord, error) {
	kind, err := kindForPath(path)
	if err != nil {
		return execution.CallbackRecord{}, err
	}
	if kind == execution.CallbackLLM {
		if in.ctx.Limits.MaxLLMCalls > 0 && in.llmCalls >= in.ctx.Limits.MaxLLMCalls {
			return execution.CallbackRecord{}, atperrors.New(atperrors.CodeLLMCallsExceeded, "max LLM call count exceeded")
		}
		in.llmCalls++
	}

	var payload any
	if len(args) == 1 {
		payload = args[0]
	} else {
		payload = args
	}

	if kind == execution.CallbackTool {
		if err := in.validateToolCall(path, payload); err != nil {
			return execution.CallbackRecord{}, err
		}
	}

	req := map[string]any{"path": path, "payload": payload}
	raw, err := toJSON(req)
	if err != nil {
		return execution.CallbackRecord{}, err
	}

	return execution.CallbackRecord{
		ID:          atp.CallbackID(callID),
		BatchID:     atp.CallbackID(batchID),
		Kind:        kind,
		Request:     raw,
		RequestedAt: in.now(),
	}, nil
}

// validateToolCall resolves an api.<groupName>.<name> call against the
// catalog and validates payload against the tool's declared schema. An
// unregistered tool, or a payload that fails its schema, is rejected before
// a CallbackRecord is ever created — the caller never sees a pause for a
// call the catalog would reject anyway.
func (in *Interpreter) validateToolCall(path string, payload any) error {
	if in.ctx.Catalog == nil {
		return nil
	}
	parts := strings.SplitN(strings.TrimPrefix(path, "api."), ".", 2)
	if len(parts) != 2 {
		return atperrors.Newf(atperrors.CodeValidation, "malformed tool path %q", path)
	}
	tool, ok := in.ctx.Catalog.FindByGroupName(parts[0], parts[1])
	if !ok {
		return atperrors.Newf(atperrors.CodeNotFound, "unregistered tool %q", path)
	}
	if !in.inScope(tool) {
		return atperrors.Newf(atperrors.CodePolicyDenied, "tool %q is outside the session's scope", path)
	}
	if err := tool.ValidatePayload(payload); err != nil {
		return atperrors.Wrap(atperrors.CodeValidation, "payload failed schema validation for "+path, err)
	}
	return nil
}

// tagResult labels a resolved callback's decoded value in the provenance
// registry: atp.llm results carry LabelLLMOutput, every api.* tool result
// carries LabelToolResult, and a tool whose catalog entry is tagged
// "credential" additionally carries LabelCredential. A nil Provenance (mode
// none, or no registry configured) makes this a no-op via Registry.Tag's own
// ModeNone guard.
func (in *Interpreter) tagResult(kind execution.CallbackKind, path string, value any) {
	if in.ctx.Provenance == nil {
		return
	}
	digest, err := in.ctx.Provenance.Digest(value)
	if err != nil {
		return
	}
	switch kind {
	case execution.CallbackLLM:
		in.ctx.Provenance.Tag(digest, provenance.LabelLLMOutput)
	case execution.CallbackTool:
		in.ctx.Provenance.Tag(digest, provenance.LabelToolResult)
		if in.toolHasTag(path, "credential") {
			in.ctx.Provenance.Tag(digest, provenance.LabelCredential)
		}
	}
}

// toolHasTag reports whether the catalog entry for an api.<group>.<name>
// path declares tag among its Tags.
func (in *Interpreter) toolHasTag(path, tag string) bool {
	if in.ctx.Catalog == nil {
		return false
	}
	parts := strings.SplitN(strings.TrimPrefix(path, "api."), ".", 2)
	if len(parts) != 2 {
		return false
	}
	tool, ok := in.ctx.Catalog.FindByGroupName(parts[0], parts[1])
	if !ok {
		return false
	}
	for _, t := range tool.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// inScope applies the same empty-scope-falls-back-to-custom rule as
// catalog.Catalog.Scoped, so a tool call is rejected exactly when it would
// have been absent from the session's own Scoped() listing.
func (in *Interpreter) inScope(tool catalog.ToolSpec) bool {
	if len(in.ctx.Scope) == 0 {
		return tool.Group == catalog.GroupCustom
	}
	for _, s := range in.ctx.Scope {
		if s == tool.GroupName {
			return true
		}
	}
	return false
}

func kindForPath(path string) (execution.CallbackKind, error) {
	switch {
	case path == "atp.llm" || strings.HasPrefix(path, "atp.llm."):
		return execution.CallbackLLM, nil
	case path == "atp.approval" || strings.HasPrefix(path, "atp.approval."):
		return execution.CallbackApproval, nil
	case path == "atp.embedding" || strings.HasPrefix(path, "atp.embedding."):
		return execution.CallbackEmbedding, nil
	case strings.HasPrefix(path, "api."):
		return execution.CallbackTool, nil
	}
	return "", atperrors.Newf(atperrors.CodeSandboxViolation, "unrecognized pausing call %q", path)
}

// decodeCallbackResult turns a resolved CallbackRecord's Result back into an
// interpreter value. A tool/service error is represented as a regular
// object value ({"__error":true,"message":...}), never surfaced as a Go
// error here: only a missing/malformed record, or an explicit
// service-not-provided marker, is a Go-level error. The latter is terminal
// (the client promised this capability at /api/init but refused to honor
// it on resume), unlike an ordinary business-logic error value.
func decodeCallbackResult(rec execution.CallbackRecord) (any, *PauseSignal, error) {
	if rec.Result == nil {
		return nil, nil, atperrors.New(atperrors.CodeInternal, "callback resolved with no result")
	}
	var v any
	if err := json.Unmarshal(rec.Result, &v); err != nil {
		return nil, nil, err
	}
	if m, ok := v.(map[string]any); ok {
		if isErr, _ := m["__error"].(bool); isErr {
			if code, _ := m["code"].(string); code == string(atperrors.CodeServiceNotProvided) {
				msg, _ := m["message"].(string)
				return nil, nil, atperrors.New(atperrors.CodeServiceNotProvided, msg)
			}
		}
	}
	return v, nil, nil
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	case []any:
		return true
	case map[string]any:
		return true
	}
	return true
}

func toNumber(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case bool:
		if x {
			return 1
		}
		return 0
	}
	return 0
}

func toString(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case bool:
		if x {
			return "true"
		}
		return "false"
	case float64:
		return fmt.Sprintf("%g", x)
	default:
		data, _ := json.Marshal(x)
		return string(data)
	}
}

func equal(a, b any) bool {
	af, aok := a.(float64)
	bf, bok := b.(float64)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}
