package hooks

import (
	"encoding/json"

	"github.com/look4regev/agent-tool-protocol-sub002"
)

// EventType is the wire-level event discriminator for /api/execute-stream,
// the four kinds named by its line-delimited event stream contract.
type EventType string

const (
	EventStart    EventType = "start"
	EventProgress EventType = "progress"
	EventResult   EventType = "result"
	EventError    EventType = "error"
)

// Event is one entry in the execute-stream response. Concrete event types
// embed Base to avoid repeating the envelope fields.
type Event interface {
	Type() EventType
	ExecutionID() atp.ExecutionID
	Payload() any
}

// Base provides the shared Event envelope.
type Base struct {
	t  EventType
	id atp.ExecutionID
	p  any
}

// NewBase constructs a Base event envelope.
func NewBase(t EventType, id atp.ExecutionID, payload any) Base {
	return Base{t: t, id: id, p: payload}
}

func (b Base) Type() EventType             { return b.t }
func (b Base) ExecutionID() atp.ExecutionID { return b.id }
func (b Base) Payload() any                 { return b.p }

// StartEvent is published once, immediately after an execution is assigned
// its ExecutionID, before the interpreter runs.
type StartEvent struct {
	Base
}

// NewStartEvent builds a StartEvent.
func NewStartEvent(id atp.ExecutionID) StartEvent {
	return StartEvent{Base: NewBase(EventStart, id, nil)}
}

// ProgressPayload describes one pausing call resolved or issued while the
// execute-stream request is still being serviced server-side (e.g. an
// atp.llm call resolved inline through a configured model gateway).
type ProgressPayload struct {
	CallID string `json:"callId"`
	Kind   string `json:"kind"`
	Stage  string `json:"stage"` // "issued" or "resolved"
}

// ProgressEvent reports one step of in-flight work.
type ProgressEvent struct {
	Base
}

// NewProgressEvent builds a ProgressEvent.
func NewProgressEvent(id atp.ExecutionID, payload ProgressPayload) ProgressEvent {
	return ProgressEvent{Base: NewBase(EventProgress, id, payload)}
}

// ResultPayload carries a terminal successful or paused ExecutionResult,
// JSON-encoded the same way /api/execute's response body is.
type ResultPayload struct {
	Body json.RawMessage `json:"body"`
}

// ResultEvent is published exactly once, terminating the stream on success
// or pause.
type ResultEvent struct {
	Base
}

// NewResultEvent builds a ResultEvent.
func NewResultEvent(id atp.ExecutionID, body json.RawMessage) ResultEvent {
	return ResultEvent{Base: NewBase(EventResult, id, ResultPayload{Body: body})}
}

// ErrorPayload carries a terminal failure.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorEvent is published exactly once, terminating the stream on failure.
type ErrorEvent struct {
	Base
}

// NewErrorEvent builds an ErrorEvent.
func NewErrorEvent(id atp.ExecutionID, code, message string) ErrorEvent {
	return ErrorEvent{Base: NewBase(EventError, id, ErrorPayload{Code: code, Message: message})}
}
