package hooks_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/look4regev/agent-tool-protocol-sub002"
	"github.com/look4regev/agent-tool-protocol-sub002/hooks"
)

func TestEventEnvelopesCarryTypeAndExecutionID(t *testing.T) {
	id := atp.NewExecutionID()

	start := hooks.NewStartEvent(id)
	require.Equal(t, hooks.EventStart, start.Type())
	require.Equal(t, id, start.ExecutionID())
	require.Nil(t, start.Payload())

	progress := hooks.NewProgressEvent(id, hooks.ProgressPayload{CallID: "cb-1", Kind: "tool", Stage: "issued"})
	require.Equal(t, hooks.EventProgress, progress.Type())
	payload, ok := progress.Payload().(hooks.ProgressPayload)
	require.True(t, ok)
	require.Equal(t, "cb-1", payload.CallID)
	require.Equal(t, "issued", payload.Stage)

	result := hooks.NewResultEvent(id, []byte(`{"status":"completed"}`))
	require.Equal(t, hooks.EventResult, result.Type())
	resultPayload, ok := result.Payload().(hooks.ResultPayload)
	require.True(t, ok)
	require.JSONEq(t, `{"status":"completed"}`, string(resultPayload.Body))

	errEvent := hooks.NewErrorEvent(id, "policy_denied", "blocked")
	require.Equal(t, hooks.EventError, errEvent.Type())
	errPayload, ok := errEvent.Payload().(hooks.ErrorPayload)
	require.True(t, ok)
	require.Equal(t, "policy_denied", errPayload.Code)
	require.Equal(t, "blocked", errPayload.Message)
}
