package catalog

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// TypeScriptSurface renders tools as a TypeScript-like namespace declaration,
// the "language surface shown to the agent" GET /api/definitions returns.
// It is documentation only: the sandbox's own grammar (rewriter) is what
// actually constrains what a program may call.
func (c *Catalog) TypeScriptSurface(scope []string) string {
	var b strings.Builder
	b.WriteString("declare namespace api {\n")
	for _, group := range []Group{GroupOpenAPI, GroupMCP, GroupCustom} {
		names := c.groupNamesUnder(group)
		for _, name := range names {
			tools := c.toolsUnder(group, name)
			if len(tools) == 0 {
				continue
			}
			if !groupVisible(scope, name) {
				continue
			}
			fmt.Fprintf(&b, "  namespace %s {\n", tsIdent(name))
			for _, t := range tools {
				writeToolSignature(&b, t)
			}
			b.WriteString("  }\n")
		}
	}
	b.WriteString("}\n")
	return b.String()
}

func groupVisible(scope []string, groupName string) bool {
	if len(scope) == 0 {
		return true // TypeScriptSurface(nil) documents everything; callers scope via Scoped for execution
	}
	for _, s := range scope {
		if s == groupName {
			return true
		}
	}
	return false
}

func (c *Catalog) toolsUnder(group Group, groupName string) []ToolSpec {
	var out []ToolSpec
	for _, p := range c.order {
		t := c.tools[p]
		if t.Group == group && t.GroupName == groupName {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func writeToolSignature(b *strings.Builder, t ToolSpec) {
	if t.Description != "" {
		fmt.Fprintf(b, "    // %s\n", t.Description)
	}
	payloadType := "any"
	if len(t.Payload.Schema) > 0 {
		payloadType = schemaToTS(t.Payload.Schema)
	}
	resultType := "any"
	if len(t.Result.Schema) > 0 {
		resultType = schemaToTS(t.Result.Schema)
	}
	fmt.Fprintf(b, "    function %s(payload: %s): Promise<%s>;\n", tsIdent(t.Name), payloadType, resultType)
}

func tsIdent(s string) string {
	if s == "" {
		return "_"
	}
	return s
}

// schemaToTS renders a shallow TypeScript type from a raw JSON-schema
// document, only as deep as documentation needs: object property names and
// their immediate type, array element type, string/number/boolean/enum.
// Anything more complex (oneOf, $ref, recursive schemas) degrades to "any".
func schemaToTS(raw []byte) string {
	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		return "any"
	}
	return schemaNodeToTS(schema, 0)
}

func schemaNodeToTS(schema map[string]any, depth int) string {
	if depth > 4 {
		return "any"
	}
	if enumVals, ok := schema["enum"].([]any); ok {
		lits := make([]string, 0, len(enumVals))
		for _, v := range enumVals {
			b, err := json.Marshal(v)
			if err != nil {
				continue
			}
			lits = append(lits, string(b))
		}
		if len(lits) > 0 {
			return strings.Join(lits, " | ")
		}
	}

	typ, _ := schema["type"].(string)
	switch typ {
	case "string":
		return "string"
	case "number", "integer":
		return "number"
	case "boolean":
		return "boolean"
	case "null":
		return "null"
	case "array":
		items, _ := schema["items"].(map[string]any)
		if items == nil {
			return "any[]"
		}
		return schemaNodeToTS(items, depth+1) + "[]"
	case "object":
		props, _ := schema["properties"].(map[string]any)
		if len(props) == 0 {
			return "Record<string, any>"
		}
		required := map[string]bool{}
		if reqList, ok := schema["required"].([]any); ok {
			for _, r := range reqList {
				if s, ok := r.(string); ok {
					required[s] = true
				}
			}
		}
		names := make([]string, 0, len(props))
		for name := range props {
			names = append(names, name)
		}
		sort.Strings(names)
		var b strings.Builder
		b.WriteString("{ ")
		for i, name := range names {
			if i > 0 {
				b.WriteString("; ")
			}
			propSchema, _ := props[name].(map[string]any)
			optional := ""
			if !required[name] {
				optional = "?"
			}
			fmt.Fprintf(&b, "%s%s: %s", name, optional, schemaNodeToTS(propSchema, depth+1))
		}
		b.WriteString(" }")
		return b.String()
	default:
		return "any"
	}
}
