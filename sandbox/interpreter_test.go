package sandbox_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/look4regev/agent-tool-protocol-sub002"
	"github.com/look4regev/agent-tool-protocol-sub002/atperrors"
	"github.com/look4regev/agent-tool-protocol-sub002/cache/inmem"
	"github.com/look4regev/agent-tool-protocol-sub002/catalog"
	"github.com/look4regev/agent-tool-protocol-sub002/execution"
	"github.com/look4regev/agent-tool-protocol-sub002/provenance"
	"github.com/look4regev/agent-tool-protocol-sub002/rewriter"
	"github.com/look4regev/agent-tool-protocol-sub002/sandbox"
	"github.com/look4regev/agent-tool-protocol-sub002/telemetry"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c := catalog.New()
	register := func(groupName, name string) {
		require.NoError(t, c.Register(catalog.ToolSpec{
			Group:     catalog.GroupCustom,
			GroupName: groupName,
			Name:      name,
		}))
	}
	register("stripe", "createCharge")
	register("counter", "add")
	register("a", "one")
	register("a", "two")
	return c
}

func newCtx(t *testing.T) *sandbox.Context {
	return &sandbox.Context{
		ExecutionID: "exec-1",
		Tenant:      "acme",
		Catalog:     testCatalog(t),
		Provenance:  provenance.New(provenance.ModeNone, "test-secret"),
		Cache:       inmem.New(),
		Logger:      telemetry.NoopLogger{},
		Metrics:     telemetry.NoopMetrics{},
		Tracer:      telemetry.NoopTracer{},
	}
}

func compile(t *testing.T, src, salt string) *rewriter.Program {
	t.Helper()
	prog, err := rewriter.Parse(src)
	require.NoError(t, err)
	return rewriter.Rewrite(prog, salt)
}

func TestRunSimpleArithmeticReturn(t *testing.T) {
	prog := compile(t, `
		let x = 1 + 2;
		return x * 3;
	`, "exec-1")

	in := sandbox.New(newCtx(t), nil, nil)
	result, pause, err := in.Run(prog)
	require.NoError(t, err)
	require.Nil(t, pause)
	require.Equal(t, float64(9), result)
}

func TestRunPausesOnNewToolCall(t *testing.T) {
	prog := compile(t, `
		let y = api.stripe.createCharge({amount: 100});
		return y;
	`, "exec-2")

	in := sandbox.New(newCtx(t), nil, nil)
	result, pause, err := in.Run(prog)
	require.NoError(t, err)
	require.Nil(t, result)
	require.NotNil(t, pause)
	require.Len(t, pause.Batched, 1)
	require.Equal(t, execution.CallbackTool, pause.Batched[0].Kind)
	require.Len(t, in.NewCallbacks(), 1)
}

func TestRunReplaysResolvedCallFromHistory(t *testing.T) {
	src := `
		let y = api.stripe.createCharge({amount: 100});
		return y;
	`
	prog := compile(t, src, "exec-3")
	call := prog.Statements[0].(rewriter.LetStmt).Expr.(rewriter.CallExpr)

	resolved, err := json.Marshal(map[string]any{"chargeId": "ch_123"})
	require.NoError(t, err)

	history := []execution.CallbackRecord{
		{
			ID:      atp.CallbackID(call.CallID),
			Kind:    execution.CallbackTool,
			Request: json.RawMessage(`{"path":"api.stripe.createCharge","payload":{"amount":100}}`),
			Result:  resolved,
		},
	}

	in := sandbox.New(newCtx(t), history, nil)
	result, pause, err := in.Run(prog)
	require.NoError(t, err)
	require.Nil(t, pause)

	m, ok := result.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "ch_123", m["chargeId"])
}

func TestRunBatchesAtpAll(t *testing.T) {
	prog := compile(t, `
		let r = atp.all([api.a.one({}), api.a.two({})]);
		return r;
	`, "exec-4")

	in := sandbox.New(newCtx(t), nil, nil)
	_, pause, err := in.Run(prog)
	require.NoError(t, err)
	require.NotNil(t, pause)
	require.Len(t, pause.Batched, 2)
	require.Equal(t, pause.Batched[0].BatchID, pause.Batched[1].BatchID)
}

func TestRunCacheCallIsSynchronous(t *testing.T) {
	prog := compile(t, `
		atp.cache.set("k", 42, 0);
		let v = atp.cache.get("k");
		return v;
	`, "exec-5")

	in := sandbox.New(newCtx(t), nil, nil)
	result, pause, err := in.Run(prog)
	require.NoError(t, err)
	require.Nil(t, pause)
	require.Equal(t, float64(42), result)
	require.Empty(t, in.NewCallbacks())
}

func TestRunWhileLoopCheckpointsAndResumesMidway(t *testing.T) {
	src := `
		let total = 0;
		let i = 0;
		while (i < 3) {
			total = total + api.counter.add({});
			i = i + 1;
		}
		return total;
	`
	prog := compile(t, src, "exec-6")

	ctx := newCtx(t)
	in := sandbox.New(ctx, nil, nil)
	_, pause, err := in.Run(prog)
	require.NoError(t, err)
	require.NotNil(t, pause)
	require.Len(t, pause.Batched, 1)

	firstCall := pause.Batched[0]
	firstCall.Result, _ = json.Marshal(1)

	checkpoints := in.Checkpoints()
	require.Len(t, checkpoints, 1)

	in2 := sandbox.New(ctx, []execution.CallbackRecord{firstCall}, checkpoints)
	_, pause2, err := in2.Run(prog)
	require.NoError(t, err)
	require.NotNil(t, pause2)
	require.Len(t, in2.NewCallbacks(), 1)
}

func TestRunEnforcesWallClockLimit(t *testing.T) {
	prog := compile(t, `
		let x = 1;
		return x;
	`, "exec-7")

	ctx := newCtx(t)
	ctx.Limits.MaxWallClock = time.Nanosecond
	start := time.Now()
	ctx.Now = func() time.Time { return start }

	in := sandbox.New(ctx, nil, nil)
	ctx.Now = func() time.Time { return start.Add(time.Hour) }
	_, _, err := in.Run(prog)
	require.Error(t, err)
	var atpErr *atperrors.Error
	require.ErrorAs(t, err, &atpErr)
	require.Equal(t, atperrors.CodeTimeout, atpErr.Code)
}

func TestRunRejectsCallOutsideSessionScope(t *testing.T) {
	prog := compile(t, `
		let y = api.stripe.createCharge({amount: 100});
		return y;
	`, "exec-8")

	ctx := newCtx(t)
	ctx.Scope = []string{"counter"}

	in := sandbox.New(ctx, nil, nil)
	_, _, err := in.Run(prog)
	require.Error(t, err)
	var atpErr *atperrors.Error
	require.ErrorAs(t, err, &atpErr)
	require.Equal(t, atperrors.CodePolicyDenied, atpErr.Code)
}

func TestValidateRejectsForbiddenIdentifier(t *testing.T) {
	err := sandbox.Validate(`let x = eval("1+1");`)
	require.Error(t, err)
}
