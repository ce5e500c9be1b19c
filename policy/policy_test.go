package policy_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/look4regev/agent-tool-protocol-sub002/execution"
	"github.com/look4regev/agent-tool-protocol-sub002/policy"
	"github.com/look4regev/agent-tool-protocol-sub002/provenance"
)

func TestExfiltrationPolicyBlocksCredentialToUnknownDestination(t *testing.T) {
	eng := policy.New([]policy.Policy{
		policy.ExfiltrationPolicy{AllowedDestinations: map[string]bool{"vault.read": true}},
	}, 0, 0)

	d, err := eng.Decide(context.Background(), policy.Input{
		Kind:     execution.CallbackTool,
		ToolName: "http.post",
		Labels:   []provenance.Label{provenance.LabelCredential},
	})
	require.NoError(t, err)
	require.Equal(t, policy.VerdictBlock, d.Verdict)
}

func TestExfiltrationPolicyAllowsAllowlistedDestination(t *testing.T) {
	eng := policy.New([]policy.Policy{
		policy.ExfiltrationPolicy{AllowedDestinations: map[string]bool{"vault.read": true}},
	}, 0, 0)

	d, err := eng.Decide(context.Background(), policy.Input{
		ToolName: "vault.read",
		Labels:   []provenance.Label{provenance.LabelCredential},
	})
	require.NoError(t, err)
	require.Equal(t, policy.VerdictAllow, d.Verdict)
}

func TestUserOriginRequiredPolicy(t *testing.T) {
	eng := policy.New([]policy.Policy{policy.UserOriginRequiredPolicy{}}, 0, 0)

	blocked, err := eng.Decide(context.Background(), policy.Input{
		Tags: []string{"requires_user_origin"},
	})
	require.NoError(t, err)
	require.Equal(t, policy.VerdictBlock, blocked.Verdict)

	allowed, err := eng.Decide(context.Background(), policy.Input{
		Tags:   []string{"requires_user_origin"},
		Labels: []provenance.Label{provenance.LabelUserInput},
	})
	require.NoError(t, err)
	require.Equal(t, policy.VerdictAllow, allowed.Verdict)
}

func TestCapsExhausted(t *testing.T) {
	eng := policy.New(nil, 0, 0)
	d, err := eng.Decide(context.Background(), policy.Input{
		Caps: policy.CapsState{MaxCalls: 1, RemainingCalls: 0},
	})
	require.NoError(t, err)
	require.Equal(t, policy.VerdictBlock, d.Verdict)
}
