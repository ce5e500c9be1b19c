// Package policy implements the Policy Engine (C9): an ordered list of
// predicates deciding whether a pausing call may proceed, each returning
// allow, log or block.
package policy

import (
	"context"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/look4regev/agent-tool-protocol-sub002/execution"
	"github.com/look4regev/agent-tool-protocol-sub002/provenance"
)

// Verdict is the outcome of one policy predicate.
type Verdict string

const (
	VerdictAllow Verdict = "allow"
	VerdictLog   Verdict = "log"
	VerdictBlock Verdict = "block"
)

// CapsState mirrors the remaining-budget bookkeeping the teacher's policy
// package tracks per run, generalized from "planner tool calls" to "any
// pausing call this execution makes."
type CapsState struct {
	MaxCalls                      int
	RemainingCalls                int
	MaxConsecutiveFailedCalls     int
	RemainingConsecutiveFailures  int
	ExpiresAt                     time.Time
}

// Input is everything a Policy needs to decide on one pausing call.
type Input struct {
	ExecutionID string
	Kind        execution.CallbackKind
	ToolName    string
	Tags        []string
	Labels      []provenance.Label
	Caps        CapsState
}

// Decision is the result of running every registered Policy in order. The
// first Block short-circuits; Log accumulates without stopping evaluation.
type Decision struct {
	Verdict Verdict
	Reason  string
	// Logged collects every policy that returned Log, even if a later
	// policy ultimately blocks.
	Logged []string
}

// Policy is one predicate in the ordered chain.
type Policy interface {
	Name() string
	Evaluate(ctx context.Context, in Input) (Verdict, string, error)
}

// Engine runs an ordered list of Policy predicates plus a built-in
// token-bucket rate limit per tool group.
type Engine struct {
	policies []Policy
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
}

// New builds an Engine from policies, evaluated in order. rps/burst
// configure the built-in per-tool-group rate limit; rps<=0 disables it.
func New(policies []Policy, rps float64, burst int) *Engine {
	return &Engine{
		policies: policies,
		limiters: map[string]*rate.Limiter{},
		rps:      rps,
		burst:    burst,
	}
}

// Decide runs every policy in order against in and returns the aggregate
// Decision.
func (e *Engine) Decide(ctx context.Context, in Input) (Decision, error) {
	d := Decision{Verdict: VerdictAllow}

	if !in.Caps.ExpiresAt.IsZero() && time.Now().After(in.Caps.ExpiresAt) {
		return Decision{Verdict: VerdictBlock, Reason: "execution time budget exceeded"}, nil
	}
	if in.Caps.MaxCalls > 0 && in.Caps.RemainingCalls <= 0 {
		return Decision{Verdict: VerdictBlock, Reason: "max pausing calls exceeded"}, nil
	}
	if in.Caps.MaxConsecutiveFailedCalls > 0 && in.Caps.RemainingConsecutiveFailures <= 0 {
		return Decision{Verdict: VerdictBlock, Reason: "too many consecutive failed calls"}, nil
	}

	if e.rps > 0 && in.ToolName != "" {
		// api.<group>.<op> tools share their group's bucket; any other
		// path (atp.llm, ...) gets a bucket of its own.
		group := in.ToolName
		if parts := strings.SplitN(in.ToolName, ".", 3); len(parts) == 3 && parts[0] == "api" {
			group = parts[0] + "." + parts[1]
		}
		if !e.limiterFor(group).Allow() {
			return Decision{Verdict: VerdictBlock, Reason: "rate limit exceeded for " + in.ToolName}, nil
		}
	}

	for _, p := range e.policies {
		v, reason, err := p.Evaluate(ctx, in)
		if err != nil {
			return Decision{}, err
		}
		switch v {
		case VerdictBlock:
			return Decision{Verdict: VerdictBlock, Reason: reason, Logged: d.Logged}, nil
		case VerdictLog:
			d.Logged = append(d.Logged, p.Name()+": "+reason)
		}
	}
	return d, nil
}

func (e *Engine) limiterFor(tool string) *rate.Limiter {
	l, ok := e.limiters[tool]
	if !ok {
		l = rate.NewLimiter(rate.Limit(e.rps), e.burst)
		e.limiters[tool] = l
	}
	return l
}

// ExfiltrationPolicy blocks pausing calls whose request carries both a
// credential-labeled value and a tool/LLM destination outside an allowlist,
// the built-in policy named in the spec for preventing a tainted
// credential from leaving the sandbox via a pausing call.
type ExfiltrationPolicy struct {
	AllowedDestinations map[string]bool
}

func (ExfiltrationPolicy) Name() string { return "exfiltration" }

func (p ExfiltrationPolicy) Evaluate(_ context.Context, in Input) (Verdict, string, error) {
	hasCredential := false
	for _, l := range in.Labels {
		if l == provenance.LabelCredential {
			hasCredential = true
			break
		}
	}
	if !hasCredential {
		return VerdictAllow, "", nil
	}
	if p.AllowedDestinations[in.ToolName] {
		return VerdictAllow, "", nil
	}
	return VerdictBlock, "credential-labeled value passed to non-allowlisted destination " + in.ToolName, nil
}

// UserOriginRequiredPolicy blocks calls whose tags mark them as requiring a
// user-originated value (e.g. a payment confirmation) when no
// user_input-labeled value is present among the call's tracked inputs.
type UserOriginRequiredPolicy struct{}

func (UserOriginRequiredPolicy) Name() string { return "user_origin_required" }

func (UserOriginRequiredPolicy) Evaluate(_ context.Context, in Input) (Verdict, string, error) {
	requires := false
	for _, t := range in.Tags {
		if t == "requires_user_origin" {
			requires = true
			break
		}
	}
	if !requires {
		return VerdictAllow, "", nil
	}
	for _, l := range in.Labels {
		if l == provenance.LabelUserInput {
			return VerdictAllow, "", nil
		}
	}
	return VerdictBlock, "call tagged requires_user_origin has no user-originated input", nil
}
