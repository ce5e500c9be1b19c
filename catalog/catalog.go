// Package catalog implements the Tool Catalog & Type Surface (C2): a
// registry of callable tools grouped under /openapi, /mcp and /custom
// namespaces, each with a validated JSON-schema payload/result type.
package catalog

import (
	"bytes"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Group names the top-level namespace a tool belongs to.
type Group string

const (
	GroupOpenAPI Group = "openapi"
	GroupMCP     Group = "mcp"
	GroupCustom  Group = "custom"
)

// TypeSpec describes one JSON-schema-typed payload or result, mirroring
// tools.TypeSpec: a name, its schema, and an example for documentation.
type TypeSpec struct {
	Name        string
	Schema      []byte // raw JSON schema document
	ExampleJSON []byte

	compiled *jsonschema.Schema
}

// ToolSpec describes one callable tool exposed to sandboxed programs as
// api.<group>.<path>(...). Payload/Result type schemas are validated at
// registration time so a malformed tool never reaches the catalog.
type ToolSpec struct {
	Group       Group
	GroupName   string // e.g. "stripe" under /openapi/stripe
	Name        string
	Description string
	Tags        []string
	Payload     TypeSpec
	Result      TypeSpec
	// RequiresConfirmation marks a tool the Sandbox Host must route through
	// the approval pausing-call kind before dispatch, regardless of
	// whether the program awaited it explicitly.
	RequiresConfirmation bool
}

// Path is the catalog path this tool is addressed by, e.g.
// "/openapi/stripe/createCharge".
func (t ToolSpec) Path() string {
	return fmt.Sprintf("/%s/%s/%s", t.Group, t.GroupName, t.Name)
}

// Catalog holds every registered ToolSpec and compiles/validates their
// schemas up front.
type Catalog struct {
	tools map[string]ToolSpec // keyed by Path()
	order []string
}

// New returns an empty Catalog.
func New() *Catalog {
	return &Catalog{tools: map[string]ToolSpec{}}
}

// Register validates spec's schemas with jsonschema/v6 and adds it to the
// catalog. Registering over an existing path is an error: paths must be
// unique.
func (c *Catalog) Register(spec ToolSpec) error {
	path := spec.Path()
	if _, exists := c.tools[path]; exists {
		return fmt.Errorf("catalog: tool already registered at %s", path)
	}
	if len(spec.Payload.Schema) > 0 {
		compiled, err := compileSchema(path+"#payload", spec.Payload.Schema)
		if err != nil {
			return fmt.Errorf("catalog: payload schema for %s: %w", path, err)
		}
		spec.Payload.compiled = compiled
	}
	if len(spec.Result.Schema) > 0 {
		compiled, err := compileSchema(path+"#result", spec.Result.Schema)
		if err != nil {
			return fmt.Errorf("catalog: result schema for %s: %w", path, err)
		}
		spec.Result.compiled = compiled
	}
	c.tools[path] = spec
	c.order = append(c.order, path)
	return nil
}

func compileSchema(uri string, raw []byte) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(uri, doc); err != nil {
		return nil, err
	}
	return compiler.Compile(uri)
}

// ValidatePayload validates data against the tool's declared payload
// schema. A tool with no payload schema accepts anything.
func (t ToolSpec) ValidatePayload(data any) error {
	if t.Payload.compiled == nil {
		return nil
	}
	return t.Payload.compiled.Validate(data)
}

// Get returns the tool registered at path.
func (c *Catalog) Get(path string) (ToolSpec, bool) {
	t, ok := c.tools[path]
	return t, ok
}

// FindByGroupName looks a tool up by its groupName and name alone, ignoring
// which of openapi/mcp/custom it was registered under. Sandboxed programs
// address tools as api.<groupName>.<name>, which doesn't distinguish the
// top-level Group, so the Sandbox Host resolves api.* calls through this
// lookup rather than Get.
func (c *Catalog) FindByGroupName(groupName, name string) (ToolSpec, bool) {
	for _, p := range c.order {
		t := c.tools[p]
		if t.GroupName == groupName && t.Name == name {
			return t, true
		}
	}
	return ToolSpec{}, false
}

// List returns every registered tool in registration order.
func (c *Catalog) List() []ToolSpec {
	out := make([]ToolSpec, 0, len(c.order))
	for _, p := range c.order {
		out = append(out, c.tools[p])
	}
	return out
}

// Scoped returns the subset of the catalog's tools visible to a session
// with the given scope names (group names the session's credentials grant
// access to). An empty scope falls back to the catalog's public group, the
// uniform fallback this spec chose for Open Question 2.
func (c *Catalog) Scoped(scope []string) []ToolSpec {
	if len(scope) == 0 {
		return c.groupFiltered(GroupCustom)
	}
	allowed := make(map[string]bool, len(scope))
	for _, s := range scope {
		allowed[s] = true
	}
	out := make([]ToolSpec, 0, len(c.order))
	for _, p := range c.order {
		t := c.tools[p]
		if allowed[t.GroupName] {
			out = append(out, t)
		}
	}
	return out
}

func (c *Catalog) groupFiltered(group Group) []ToolSpec {
	out := make([]ToolSpec, 0)
	for _, p := range c.order {
		t := c.tools[p]
		if t.Group == group {
			out = append(out, t)
		}
	}
	return out
}
