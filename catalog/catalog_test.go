package catalog_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/look4regev/agent-tool-protocol-sub002/catalog"
)

func newTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c := catalog.New()
	require.NoError(t, c.Register(catalog.ToolSpec{
		Group:       catalog.GroupOpenAPI,
		GroupName:   "stripe",
		Name:        "createCharge",
		Description: "Create a payment charge",
		Tags:        []string{"payments"},
		Payload: catalog.TypeSpec{
			Name:   "CreateChargePayload",
			Schema: []byte(`{"type":"object","properties":{"amount":{"type":"integer"}},"required":["amount"]}`),
		},
	}))
	require.NoError(t, c.Register(catalog.ToolSpec{
		Group:     catalog.GroupCustom,
		GroupName: "notes",
		Name:      "saveNote",
	}))
	return c
}

func TestRegisterRejectsDuplicatePath(t *testing.T) {
	c := newTestCatalog(t)
	err := c.Register(catalog.ToolSpec{Group: catalog.GroupOpenAPI, GroupName: "stripe", Name: "createCharge"})
	require.Error(t, err)
}

func TestValidatePayload(t *testing.T) {
	c := newTestCatalog(t)
	tool, ok := c.Get("/openapi/stripe/createCharge")
	require.True(t, ok)

	require.NoError(t, tool.ValidatePayload(map[string]any{"amount": 100}))
	require.Error(t, tool.ValidatePayload(map[string]any{}))
}

func TestScopedFallsBackToCustomWhenEmpty(t *testing.T) {
	c := newTestCatalog(t)
	scoped := c.Scoped(nil)
	require.Len(t, scoped, 1)
	require.Equal(t, "saveNote", scoped[0].Name)
}

func TestFindByGroupNameIgnoresTopLevelGroup(t *testing.T) {
	c := newTestCatalog(t)

	tool, ok := c.FindByGroupName("stripe", "createCharge")
	require.True(t, ok)
	require.Equal(t, catalog.GroupOpenAPI, tool.Group)

	_, ok = c.FindByGroupName("stripe", "noSuchTool")
	require.False(t, ok)
}

func TestExploreTree(t *testing.T) {
	c := newTestCatalog(t)

	root := c.Explore("/")
	require.ElementsMatch(t, []string{"/openapi", "/mcp", "/custom"}, root.Children)

	group := c.Explore("/openapi")
	require.Equal(t, []string{"stripe"}, group.Children)

	tools := c.Explore("/openapi/stripe")
	require.Equal(t, []string{"createCharge"}, tools.Children)

	leaf := c.Explore("/openapi/stripe/createCharge")
	require.True(t, leaf.IsLeaf)
	require.NotNil(t, leaf.Tool)
}

func TestSearchRanksNameMatchHigher(t *testing.T) {
	c := newTestCatalog(t)
	results := c.Search("charge", []string{"stripe", "notes"})
	require.NotEmpty(t, results)
	require.Equal(t, "createCharge", results[0].Tool.Name)
}
