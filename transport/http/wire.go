package http

import (
	"encoding/json"
	"time"

	"github.com/look4regev/agent-tool-protocol-sub002/core"
	"github.com/look4regev/agent-tool-protocol-sub002/execution"
)

// initRequest is the body of POST /api/init.
type initRequest struct {
	ClientInfo json.RawMessage `json:"clientInfo,omitempty"`
	Guidance   string          `json:"guidance,omitempty"`
	Tools      []toolWire      `json:"tools,omitempty"`
}

// toolWire is one client-resident tool descriptor registered at init, the
// wire shape of catalog.ToolSpec.
type toolWire struct {
	GroupName   string          `json:"groupName"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Tags        []string        `json:"tags,omitempty"`
	Payload     json.RawMessage `json:"payloadSchema,omitempty"`
	Result      json.RawMessage `json:"resultSchema,omitempty"`
}

type initResponse struct {
	ClientID  string `json:"clientId"`
	Token     string `json:"token"`
	ExpiresAt string `json:"expiresAt"`
	RotateAt  string `json:"rotateAt"`
}

type definitionsResponse struct {
	TypescriptLike string   `json:"typescriptLike"`
	APIGroups      []string `json:"apiGroups"`
	Guidance       string   `json:"guidance,omitempty"`
}

type searchRequest struct {
	Query      string   `json:"query"`
	APIGroups  []string `json:"apiGroups,omitempty"`
	MaxResults int      `json:"maxResults,omitempty"`
}

type searchResultWire struct {
	Path        string  `json:"path"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Score       float64 `json:"score"`
}

type exploreRequest struct {
	Path string `json:"path"`
}

type exploreResponse struct {
	Path     string    `json:"path"`
	IsLeaf   bool      `json:"isLeaf"`
	Children []string  `json:"children,omitempty"`
	Tool     *toolWire `json:"tool,omitempty"`
}

type executeRequest struct {
	Code            string               `json:"code"`
	Config          json.RawMessage      `json:"config,omitempty"`
	ProvenanceHints []provenanceHintWire `json:"provenanceHints,omitempty"`
}

// provenanceHintWire is the wire shape of core.ProvenanceHint.
type provenanceHintWire struct {
	Token  string   `json:"token"`
	Labels []string `json:"labels"`
}

func toProvenanceHints(in []provenanceHintWire) []core.ProvenanceHint {
	if len(in) == 0 {
		return nil
	}
	out := make([]core.ProvenanceHint, len(in))
	for i, h := range in {
		out[i] = core.ProvenanceHint{Token: h.Token, Labels: h.Labels}
	}
	return out
}

// provenanceTokenWire is the wire shape of core.ProvenanceToken.
type provenanceTokenWire struct {
	Token  string   `json:"token"`
	Labels []string `json:"labels"`
}

func toProvenanceTokenWires(in []core.ProvenanceToken) []provenanceTokenWire {
	if len(in) == 0 {
		return nil
	}
	out := make([]provenanceTokenWire, len(in))
	for i, t := range in {
		out[i] = provenanceTokenWire{Token: t.Token, Labels: t.Labels}
	}
	return out
}

// execConfigWire is the wire shape of executeRequest.Config, decoded and
// forwarded onto core.ExecuteRequest.Config so a caller's per-request
// overrides actually reach Core instead of being silently discarded.
type execConfigWire struct {
	TimeoutMS      int64    `json:"timeoutMs,omitempty"`
	MaxLLMCalls    int      `json:"maxLlmCalls,omitempty"`
	MaxMemoryBytes int64    `json:"maxMemoryBytes,omitempty"`
	ProvenanceMode string   `json:"provenanceMode,omitempty"`
	AllowedGroups  []string `json:"allowedGroups,omitempty"`
}

func (w execConfigWire) toExecConfig() *core.ExecConfig {
	return &core.ExecConfig{
		Timeout:        time.Duration(w.TimeoutMS) * time.Millisecond,
		MaxLLMCalls:    w.MaxLLMCalls,
		MaxMemoryBytes: w.MaxMemoryBytes,
		ProvenanceMode: w.ProvenanceMode,
		AllowedGroups:  w.AllowedGroups,
	}
}

type resumeRequest struct {
	Result  json.RawMessage   `json:"result,omitempty"`
	Results []resumeItemWire  `json:"results,omitempty"`
}

type resumeItemWire struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
}

type callbackWire struct {
	ID        string          `json:"id"`
	BatchID   string          `json:"batchId,omitempty"`
	Kind      string          `json:"kind"`
	Operation string          `json:"operation,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type executionErrorWire struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

type statsWire struct {
	DurationMS     int64 `json:"durationMs"`
	LLMCallsCount  int   `json:"llmCallsCount"`
	ApprovalCalls  int   `json:"approvalCallsCount"`
	ToolCallsCount int   `json:"toolCallsCount"`
	MemoryUsed     int64 `json:"memoryUsed"`
}

type executionResultWire struct {
	ExecutionID      string                `json:"executionId"`
	Status           execution.Status      `json:"status"`
	Result           json.RawMessage       `json:"result,omitempty"`
	Error            *executionErrorWire   `json:"error,omitempty"`
	NeedsCallback    *callbackWire         `json:"needsCallback,omitempty"`
	NeedsCallbacks   []callbackWire        `json:"needsCallbacks,omitempty"`
	ProvenanceTokens []provenanceTokenWire `json:"provenanceTokens,omitempty"`
	Stats            statsWire             `json:"stats"`
}

func toExecutionResultWire(res *core.ExecutionResult) executionResultWire {
	out := executionResultWire{
		ExecutionID:      string(res.ExecutionID),
		Status:           res.Status,
		Result:           res.Result,
		ProvenanceTokens: toProvenanceTokenWires(res.ProvenanceTokens),
		Stats: statsWire{
			DurationMS:     res.Stats.Duration.Milliseconds(),
			LLMCallsCount:  res.Stats.LLMCallsCount,
			ApprovalCalls:  res.Stats.ApprovalCalls,
			ToolCallsCount: res.Stats.ToolCallsCount,
			MemoryUsed:     res.Stats.MemoryUsed,
		},
	}
	if res.Error != nil {
		out.Error = &executionErrorWire{Code: res.Error.Code, Message: res.Error.Message, Retryable: res.Error.Retryable}
	}
	if res.NeedsCallback != nil {
		w := toCallbackWire(*res.NeedsCallback)
		out.NeedsCallback = &w
	}
	for _, cb := range res.NeedsCallbacks {
		out.NeedsCallbacks = append(out.NeedsCallbacks, toCallbackWire(cb))
	}
	return out
}

func toCallbackWire(cb core.CallbackRequest) callbackWire {
	return callbackWire{
		ID:        string(cb.ID),
		BatchID:   string(cb.BatchID),
		Kind:      string(cb.Kind),
		Operation: cb.Operation,
		Payload:   cb.Payload,
	}
}
