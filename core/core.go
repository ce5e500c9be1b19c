package core

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/look4regev/agent-tool-protocol-sub002"
	"github.com/look4regev/agent-tool-protocol-sub002/atperrors"
	"github.com/look4regev/agent-tool-protocol-sub002/cache"
	"github.com/look4regev/agent-tool-protocol-sub002/catalog"
	"github.com/look4regev/agent-tool-protocol-sub002/execution"
	"github.com/look4regev/agent-tool-protocol-sub002/hooks"
	"github.com/look4regev/agent-tool-protocol-sub002/model"
	"github.com/look4regev/agent-tool-protocol-sub002/policy"
	"github.com/look4regev/agent-tool-protocol-sub002/provenance"
	"github.com/look4regev/agent-tool-protocol-sub002/rewriter"
	"github.com/look4regev/agent-tool-protocol-sub002/sandbox"
	"github.com/look4regev/agent-tool-protocol-sub002/telemetry"
)

// Core drives executions end to end. It holds no per-execution state itself;
// everything survives a process restart in Store.
type Core struct {
	Store   store
	Catalog *catalog.Catalog
	Policy  *policy.Engine
	Cache   cache.Provider

	// Models, when non-nil, lets the Core resolve atp.llm pausing calls
	// itself rather than pausing out to the caller — the "model gateway"
	// mode model.Client's doc comment describes. Pausing calls of every
	// other kind (approval, embedding, api.<group>.*) always round-trip to
	// the caller regardless of this setting.
	Models model.Client

	ProvenanceMode   provenance.Mode
	ProvenanceSecret string

	// DefaultMaxWallClock/DefaultMaxLLMCalls/DefaultMaxMemoryBytes are the
	// server-wide resource ceilings applied to every execution that doesn't
	// override them via ExecuteRequest.Config.
	DefaultMaxWallClock   time.Duration
	DefaultMaxLLMCalls    int
	DefaultMaxMemoryBytes int64

	PauseTTL time.Duration

	Logger  telemetry.Logger
	Metrics telemetry.Metrics
	Tracer  telemetry.Tracer

	// Now returns the current time; overridden in tests for determinism.
	Now func() time.Time
}

// store is the subset of store.Store this package depends on, named locally
// so core's tests can supply a fake without importing the concrete package.
type store interface {
	Save(ctx context.Context, rec execution.Record, ttl time.Duration) error
	Load(ctx context.Context, id atp.ExecutionID) (execution.Record, error)
	Delete(ctx context.Context, id atp.ExecutionID) error
	Lock(ctx context.Context, id atp.ExecutionID) (func(), error)
}

func (c *Core) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// resolveConfig merges a per-request ExecConfig onto the Core's own
// defaults, field by field, and freezes the result onto the Record so a
// later Resume enforces exactly what Execute did even if the Core's
// defaults change in the meantime.
func (c *Core) resolveConfig(override *ExecConfig) execution.RecordConfig {
	cfg := execution.RecordConfig{
		MaxWallClock:   c.DefaultMaxWallClock,
		MaxLLMCalls:    c.DefaultMaxLLMCalls,
		MaxMemoryBytes: c.DefaultMaxMemoryBytes,
		ProvenanceMode: string(c.ProvenanceMode),
	}
	if override == nil {
		return cfg
	}
	if override.Timeout > 0 {
		cfg.MaxWallClock = override.Timeout
	}
	if override.MaxLLMCalls > 0 {
		cfg.MaxLLMCalls = override.MaxLLMCalls
	}
	if override.MaxMemoryBytes > 0 {
		cfg.MaxMemoryBytes = override.MaxMemoryBytes
	}
	if override.ProvenanceMode != "" {
		cfg.ProvenanceMode = override.ProvenanceMode
	}
	return cfg
}

// resolveScope narrows sessionScope to the intersection with
// override.AllowedGroups, if the override names any; it never grants a
// group sessionScope didn't already include.
func (c *Core) resolveScope(sessionScope []string, override *ExecConfig) []string {
	if override == nil || len(override.AllowedGroups) == 0 {
		return sessionScope
	}
	allowed := make(map[string]bool, len(override.AllowedGroups))
	for _, g := range override.AllowedGroups {
		allowed[g] = true
	}
	var narrowed []string
	for _, g := range sessionScope {
		if allowed[g] {
			narrowed = append(narrowed, g)
		}
	}
	return narrowed
}

// statusForCode maps a terminal atperrors.Code to the specific execution
// Status it corresponds to, falling back to the generic StatusFailed for
// codes with no dedicated lifecycle state of their own.
func statusForCode(code atperrors.Code) execution.Status {
	switch code {
	case atperrors.CodeTimeout:
		return execution.StatusTimeout
	case atperrors.CodeMemoryExceeded:
		return execution.StatusMemoryExceeded
	case atperrors.CodeLLMCallsExceeded:
		return execution.StatusLLMCallsExceeded
	case atperrors.CodeSandboxViolation:
		return execution.StatusSecurityViolation
	case atperrors.CodeParseError:
		return execution.StatusParseError
	case atperrors.CodeNetworkError, atperrors.CodeServiceNotProvided:
		return execution.StatusNetworkError
	case atperrors.CodeLoopDetected:
		return execution.StatusLoopDetected
	default:
		return execution.StatusFailed
	}
}

// codeOf extracts the atperrors.Code carried on err, defaulting to
// CodeInternal for an error that didn't originate as an *atperrors.Error.
func codeOf(err error) atperrors.Code {
	var atpErr *atperrors.Error
	if errors.As(err, &atpErr) {
		return atpErr.Code
	}
	return atperrors.CodeInternal
}

// applyProvenanceHints tags reg with the label sets a caller's hints carry,
// re-attaching provenance to a value a prior execution's ProvenanceTokens
// fingerprinted before it round-tripped through JSON into this program's
// source.
func applyProvenanceHints(reg *provenance.Registry, hints []ProvenanceHint) {
	for _, h := range hints {
		for _, l := range h.Labels {
			reg.Tag(provenance.Digest(h.Token), provenance.Label(l))
		}
	}
}

// provenanceTokensFor reports the labels, if any, attached to an execution's
// own completed return value, letting the caller chain a second execution
// over this result without losing its provenance.
func provenanceTokensFor(reg *provenance.Registry, result any) []ProvenanceToken {
	if reg == nil {
		return nil
	}
	digest, err := reg.Digest(result)
	if err != nil {
		return nil
	}
	labels := reg.Labels(digest)
	if len(labels) == 0 {
		return nil
	}
	strs := make([]string, len(labels))
	for i, l := range labels {
		strs[i] = string(l)
	}
	return []ProvenanceToken{{Token: string(digest), Labels: strs}}
}

// labelsInPayload walks a CallbackRecord's JSON request, digesting every
// nested value (the whole payload and each of its descendants) against reg
// so a label attached to a sub-value — e.g. a tool result nested under an
// object field of a later call's argument — is still found even though the
// enclosing payload itself was never tagged.
func labelsInPayload(reg *provenance.Registry, raw json.RawMessage) []provenance.Label {
	if reg == nil {
		return nil
	}
	var wrapper struct {
		Payload any `json:"payload"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil
	}
	seen := map[provenance.Label]bool{}
	var out []provenance.Label
	var walk func(v any)
	walk = func(v any) {
		if digest, err := reg.Digest(v); err == nil {
			for _, l := range reg.Labels(digest) {
				if !seen[l] {
					seen[l] = true
					out = append(out, l)
				}
			}
		}
		switch t := v.(type) {
		case map[string]any:
			for _, vv := range t {
				walk(vv)
			}
		case []any:
			for _, vv := range t {
				walk(vv)
			}
		}
	}
	walk(wrapper.Payload)
	return out
}

// Execute starts a new execution: validates and parses req.Source, rewrites
// it with the new execution's ID as salt, and runs it from the top.
func (c *Core) Execute(ctx context.Context, req ExecuteRequest) (*ExecutionResult, error) {
	start := c.now()

	if err := sandbox.Validate(req.Source); err != nil {
		return nil, atperrors.Wrap(atperrors.CodeSandboxViolation, "program failed static validation", err)
	}
	prog, err := rewriter.Parse(req.Source)
	if err != nil {
		return nil, atperrors.Wrap(atperrors.CodeParseError, "program failed to parse", err)
	}

	id := atp.NewExecutionID()
	rewritten := rewriter.Rewrite(prog, string(id))
	scope := c.resolveScope(req.Scope, req.Config)
	cfg := c.resolveConfig(req.Config)

	rec := execution.Record{
		ID:        id,
		SessionID: req.SessionID,
		ClientID:  req.ClientID,
		Tenant:    req.Tenant,
		Scope:     scope,
		Source:    req.Source,
		Status:    execution.StatusRunning,
		Config:    cfg,
		CreatedAt: start,
		UpdatedAt: start,
	}

	if req.Bus != nil {
		_ = req.Bus.Publish(ctx, hooks.NewStartEvent(id))
	}

	reg := provenance.New(provenance.Mode(cfg.ProvenanceMode), c.ProvenanceSecret)
	applyProvenanceHints(reg, req.ProvenanceHints)
	return c.runLoop(ctx, rec, rewritten, reg, req.Tenant, scope, req.Bus, start)
}

// Resume supplies the result of a prior pause and re-runs the execution from
// the top, replaying every previously resolved callback from History.
func (c *Core) Resume(ctx context.Context, req ResumeRequest) (*ExecutionResult, error) {
	start := c.now()

	release, err := c.Store.Lock(ctx, req.ExecutionID)
	if err != nil {
		return nil, atperrors.Wrap(atperrors.CodeInternal, "failed to acquire execution lock", err)
	}
	defer release()

	rec, err := c.Store.Load(ctx, req.ExecutionID)
	if err != nil {
		return nil, atperrors.Wrap(atperrors.CodeNotFound, "execution not found", err)
	}
	if rec.Status != execution.StatusPaused {
		return nil, atperrors.Newf(atperrors.CodeConflict, "execution %s is not paused (status=%s)", rec.ID, rec.Status)
	}

	resolved := make(map[atp.CallbackID]json.RawMessage, len(req.Results))
	for _, r := range req.Results {
		resolved[r.CallID] = r.Result
	}
	for i, cb := range rec.History {
		if result, ok := resolved[cb.ID]; ok {
			rec.History[i].Result = result
			rec.History[i].ResolvedAt = start
		}
	}
	for _, id := range rec.Pending {
		if _, ok := resolved[id]; !ok {
			return nil, atperrors.Newf(atperrors.CodeValidation, "resume is missing a result for pending callback %s", id)
		}
	}
	rec.Pending = nil
	rec.Status = execution.StatusRunning

	prog, err := rewriter.Parse(rec.Source)
	if err != nil {
		return nil, atperrors.Wrap(atperrors.CodeInternal, "stored source failed to re-parse on resume", err)
	}
	rewritten := rewriter.Rewrite(prog, string(rec.ID))

	var reg *provenance.Registry
	if len(rec.ProvenanceSnapshot) > 0 {
		var snap provenance.Snapshot
		if err := json.Unmarshal(rec.ProvenanceSnapshot, &snap); err != nil {
			return nil, atperrors.Wrap(atperrors.CodeInternal, "stored provenance snapshot is corrupt", err)
		}
		reg = provenance.Restore(snap, c.ProvenanceSecret)
	} else {
		mode := rec.Config.ProvenanceMode
		if mode == "" {
			mode = string(c.ProvenanceMode)
		}
		reg = provenance.New(provenance.Mode(mode), c.ProvenanceSecret)
	}

	return c.runLoop(ctx, rec, rewritten, reg, rec.Tenant, rec.Scope, req.Bus, start)
}

// runLoop interprets prog against rec's prior history/checkpoints, resolving
// any atp.llm call immediately when Models is configured instead of
// propagating its pause, until the program either completes or hits a pause
// that must round-trip to the caller.
func (c *Core) runLoop(ctx context.Context, rec execution.Record, prog *rewriter.Program, reg *provenance.Registry, tenant string, scope []string, bus hooks.Bus, start time.Time) (*ExecutionResult, error) {
	sctx := &sandbox.Context{
		ExecutionID: string(rec.ID),
		Tenant:      tenant,
		Catalog:     c.Catalog,
		Provenance:  reg,
		Cache:       c.Cache,
		Scope:       scope,
		Logger:      c.Logger,
		Metrics:     c.Metrics,
		Tracer:      c.Tracer,
		Now:         c.Now,
		Limits: sandbox.Limits{
			MaxWallClock:   rec.Config.MaxWallClock,
			MaxLLMCalls:    rec.Config.MaxLLMCalls,
			MaxMemoryBytes: rec.Config.MaxMemoryBytes,
		},
	}

	for {
		interp := sandbox.New(sctx, rec.History, rec.Checkpoints)
		result, pause, err := interp.Run(prog)
		rec.Checkpoints = interp.Checkpoints()
		rec.History = mergeHistory(rec.History, interp.NewCallbacks())
		if used := interp.MemoryUsed(); used > rec.PeakMemoryBytes {
			rec.PeakMemoryBytes = used
		}

		if err != nil {
			rec.Status = statusForCode(codeOf(err))
			rec.Error = toRecordError(err)
			rec.UpdatedAt = c.now()
			_ = c.Store.Delete(ctx, rec.ID)
			res := c.fail(rec, start)
			c.publishTerminal(ctx, bus, rec.ID, res)
			return res, nil
		}

		if pause == nil {
			rec.Status = execution.StatusCompleted
			rec.Result, _ = json.Marshal(result)
			rec.UpdatedAt = c.now()
			_ = c.Store.Delete(ctx, rec.ID)
			res := &ExecutionResult{
				ExecutionID:      rec.ID,
				Status:           execution.StatusCompleted,
				Result:           rec.Result,
				ProvenanceTokens: provenanceTokensFor(reg, result),
				Stats:            c.stats(rec, start),
			}
			c.publishTerminal(ctx, bus, rec.ID, res)
			return res, nil
		}

		if err := c.checkPolicy(ctx, rec, reg, pause.Batched); err != nil {
			rec.Status = statusForCode(codeOf(err))
			rec.Error = toRecordError(err)
			_ = c.Store.Delete(ctx, rec.ID)
			res := c.fail(rec, start)
			c.publishTerminal(ctx, bus, rec.ID, res)
			return res, nil
		}

		if bus != nil {
			for _, cb := range pause.Batched {
				_ = bus.Publish(ctx, hooks.NewProgressEvent(rec.ID, hooks.ProgressPayload{
					CallID: string(cb.ID), Kind: string(cb.Kind), Stage: "issued",
				}))
			}
		}

		resolvedInline, err := c.resolveInline(ctx, rec.ID, pause.Batched)
		if err != nil {
			rec.Status = statusForCode(codeOf(err))
			rec.Error = toRecordError(err)
			_ = c.Store.Delete(ctx, rec.ID)
			res := c.fail(rec, start)
			c.publishTerminal(ctx, bus, rec.ID, res)
			return res, nil
		}
		if resolvedInline {
			// Every batched call in this pause was resolved server-side
			// (e.g. all atp.llm under a configured gateway); loop back in
			// and let the interpreter pick the results up from History.
			if bus != nil {
				for _, cb := range pause.Batched {
					_ = bus.Publish(ctx, hooks.NewProgressEvent(rec.ID, hooks.ProgressPayload{
						CallID: string(cb.ID), Kind: string(cb.Kind), Stage: "resolved",
					}))
				}
			}
			rec.History = mergeHistory(rec.History, pause.Batched)
			continue
		}

		pending := make([]atp.CallbackID, len(pause.Batched))
		for i, cb := range pause.Batched {
			pending[i] = cb.ID
		}
		rec.History = mergeHistory(rec.History, pause.Batched)
		rec.Pending = pending
		rec.Status = execution.StatusPaused
		rec.PausedAt = c.now()
		rec.UpdatedAt = rec.PausedAt
		snap, _ := json.Marshal(reg.Snapshot())
		rec.ProvenanceSnapshot = snap

		if err := c.Store.Save(ctx, rec, c.PauseTTL); err != nil {
			return nil, atperrors.Wrap(atperrors.CodeInternal, "failed to persist paused execution", err)
		}
		res := c.paused(rec, pause.Batched, start)
		c.publishTerminal(ctx, bus, rec.ID, res)
		return res, nil
	}
}

// publishTerminal emits the stream's closing event for one Execute/Resume
// call: "result" on completion or pause, "error" on failure. It is a no-op
// when bus is nil (every caller but /api/execute-stream).
func (c *Core) publishTerminal(ctx context.Context, bus hooks.Bus, id atp.ExecutionID, res *ExecutionResult) {
	if bus == nil {
		return
	}
	if res.Error != nil {
		_ = bus.Publish(ctx, hooks.NewErrorEvent(id, res.Error.Code, res.Error.Message))
		return
	}
	body, _ := json.Marshal(res)
	_ = bus.Publish(ctx, hooks.NewResultEvent(id, body))
}

// checkPolicy runs every newly issued callback in batch through the Policy
// Engine, failing the whole execution with CodePolicyDenied on the first
// block. A nil Policy engine allows everything (policy enforcement is
// optional ambient infrastructure, not a correctness requirement of C8).
func (c *Core) checkPolicy(ctx context.Context, rec execution.Record, reg *provenance.Registry, batch []execution.CallbackRecord) error {
	if c.Policy == nil {
		return nil
	}
	for _, cb := range batch {
		path, _ := decodeCallbackPath(cb.Request)
		decision, err := c.Policy.Decide(ctx, policy.Input{
			ExecutionID: string(rec.ID),
			Kind:        cb.Kind,
			ToolName:    path,
			Labels:      labelsInPayload(reg, cb.Request),
		})
		if err != nil {
			return atperrors.Wrap(atperrors.CodeInternal, "policy engine failed", err)
		}
		if decision.Verdict == policy.VerdictBlock {
			return atperrors.New(atperrors.CodePolicyDenied, decision.Reason)
		}
	}
	return nil
}

func decodeCallbackPath(raw json.RawMessage) (string, error) {
	var wrapper struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return "", err
	}
	return wrapper.Path, nil
}

// resolveInline attempts to resolve every batched callback server-side
// (currently: atp.llm via a configured model.Client) and reports whether it
// resolved all of them. A mixed batch (some llm, some not) is left entirely
// unresolved so the caller receives the whole batch together, matching the
// ordering guarantee a parallel join promises.
func (c *Core) resolveInline(ctx context.Context, id atp.ExecutionID, batch []execution.CallbackRecord) (bool, error) {
	if c.Models == nil || len(batch) == 0 {
		return false, nil
	}
	for i := range batch {
		if batch[i].Kind != execution.CallbackLLM {
			return false, nil
		}
	}
	for i := range batch {
		req, err := decodeLLMRequest(batch[i].Request)
		if err != nil {
			return false, err
		}
		resp, err := c.Models.Complete(ctx, req)
		if err != nil {
			errVal, _ := json.Marshal(map[string]any{"__error": true, "message": err.Error()})
			batch[i].Result = errVal
		} else {
			resultVal, _ := json.Marshal(resp.Content)
			batch[i].Result = resultVal
		}
		batch[i].ResolvedAt = c.now()
	}
	return true, nil
}

func decodeLLMRequest(raw json.RawMessage) (model.Request, error) {
	var wrapper struct {
		Payload struct {
			Prompt      string  `json:"prompt"`
			Model       string  `json:"model"`
			Temperature float64 `json:"temperature"`
			MaxTokens   int     `json:"maxTokens"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return model.Request{}, err
	}
	return model.Request{
		Model:       wrapper.Payload.Model,
		Messages:    []model.Message{{Role: model.RoleUser, Content: wrapper.Payload.Prompt}},
		Temperature: wrapper.Payload.Temperature,
		MaxTokens:   wrapper.Payload.MaxTokens,
	}, nil
}

func mergeHistory(existing, newOnes []execution.CallbackRecord) []execution.CallbackRecord {
	seen := make(map[atp.CallbackID]int, len(existing))
	for i, c := range existing {
		seen[c.ID] = i
	}
	out := existing
	for _, c := range newOnes {
		if i, ok := seen[c.ID]; ok {
			out[i] = c
			continue
		}
		out = append(out, c)
		seen[c.ID] = len(out) - 1
	}
	return out
}

func (c *Core) paused(rec execution.Record, batch []execution.CallbackRecord, start time.Time) *ExecutionResult {
	reqs := make([]CallbackRequest, len(batch))
	for i, cb := range batch {
		path, _ := decodeCallbackPath(cb.Request)
		reqs[i] = CallbackRequest{ID: cb.ID, BatchID: cb.BatchID, Kind: cb.Kind, Operation: path, Payload: cb.Request}
	}
	res := &ExecutionResult{
		ExecutionID: rec.ID,
		Status:      execution.StatusPaused,
		Stats:       c.stats(rec, start),
	}
	if len(reqs) == 1 {
		res.NeedsCallback = &reqs[0]
	} else {
		res.NeedsCallbacks = reqs
	}
	return res
}

func (c *Core) fail(rec execution.Record, start time.Time) *ExecutionResult {
	status := rec.Status
	if status == execution.StatusRunning || status == execution.StatusPaused {
		status = execution.StatusFailed
	}
	res := &ExecutionResult{
		ExecutionID: rec.ID,
		Status:      status,
		Stats:       c.stats(rec, start),
	}
	if rec.Error != nil {
		res.Error = &ExecutionError{Code: rec.Error.Code, Message: rec.Error.Message}
	}
	return res
}

func (c *Core) stats(rec execution.Record, start time.Time) Stats {
	s := Stats{Duration: c.now().Sub(start), MemoryUsed: rec.PeakMemoryBytes}
	for _, cb := range rec.History {
		switch cb.Kind {
		case execution.CallbackLLM:
			s.LLMCallsCount++
		case execution.CallbackApproval:
			s.ApprovalCalls++
		case execution.CallbackTool:
			s.ToolCallsCount++
		}
	}
	return s
}

func toRecordError(err error) *execution.RecordError {
	var atpErr *atperrors.Error
	if e, ok := err.(*atperrors.Error); ok {
		atpErr = e
	}
	if atpErr != nil {
		return &execution.RecordError{Code: string(atpErr.Code), Message: atpErr.Message}
	}
	return &execution.RecordError{Code: string(atperrors.CodeInternal), Message: err.Error()}
}
