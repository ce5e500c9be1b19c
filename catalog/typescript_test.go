package catalog_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/look4regev/agent-tool-protocol-sub002/catalog"
)

func TestTypeScriptSurfaceRendersGroupedSignatures(t *testing.T) {
	c := newTestCatalog(t)
	out := c.TypeScriptSurface(nil)

	require.Contains(t, out, "declare namespace api {")
	require.Contains(t, out, "namespace stripe {")
	require.Contains(t, out, "function createCharge(payload:")
	require.Contains(t, out, "amount: number")
	require.Contains(t, out, "namespace notes {")
	require.Contains(t, out, "function saveNote(payload: any): Promise<any>;")
}

func TestTypeScriptSurfaceHonorsScope(t *testing.T) {
	c := newTestCatalog(t)
	out := c.TypeScriptSurface([]string{"notes"})

	require.NotContains(t, out, "stripe")
	require.True(t, strings.Contains(out, "notes"))
}
