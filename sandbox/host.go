package sandbox

import (
	"context"
	"time"

	"github.com/look4regev/agent-tool-protocol-sub002/cache"
	"github.com/look4regev/agent-tool-protocol-sub002/catalog"
	"github.com/look4regev/agent-tool-protocol-sub002/provenance"
	"github.com/look4regev/agent-tool-protocol-sub002/telemetry"
)

// Limits bounds a single interpreted run. They are checked continuously
// during Run, not only at entry, since a pausing call can suspend the run
// for an unbounded amount of wall-clock time on the client side.
type Limits struct {
	MaxWallClock time.Duration
	MaxLLMCalls  int
	// MaxMemoryBytes bounds the interpreter's approximate heap footprint
	// (bindings, checkpoints, callback log), checked alongside the
	// wall-clock budget on every statement. <=0 disables the check.
	MaxMemoryBytes int64
}

// Context threads host services through a single sandboxed interpreter run,
// the same role the teacher's engine.WorkflowContext plays for a workflow
// execution, narrowed here to a single in-process run with no separate
// durable backend underneath.
type Context struct {
	ExecutionID string
	Tenant      string

	Catalog    *catalog.Catalog
	Provenance *provenance.Registry
	Cache      cache.Provider

	// Scope lists the group names the session's credentials grant access
	// to. A tool call outside scope is rejected the same way an
	// unregistered tool is, before a CallbackRecord is ever built. Empty
	// scope falls back to the catalog's custom group, same as
	// catalog.Catalog.Scoped.
	Scope []string

	Logger  telemetry.Logger
	Metrics telemetry.Metrics
	Tracer  telemetry.Tracer

	Limits Limits

	// Now returns the current time; overridden in tests for determinism.
	Now func() time.Time
}

// background returns a context.Context carrying no cancellation, used for
// the synchronous atp.cache.* calls the interpreter makes directly against
// the Cache API backend.
func (c *Context) background() context.Context {
	return context.Background()
}
