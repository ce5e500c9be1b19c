package catalog

import (
	"sort"
	"strings"
)

// Node is one entry in the Explorer's virtual filesystem view of the
// catalog: either a group directory or a leaf tool.
type Node struct {
	Path     string
	IsLeaf   bool
	Children []string // populated for directories only: full paths at "/", bare names below it
	Tool     *ToolSpec
}

// Explore returns the Node at path. path="/" lists the three top-level
// groups. An intermediate path like "/openapi" lists its group names;
// "/openapi/stripe" lists tool names under that group.
func (c *Catalog) Explore(path string) Node {
	path = normalizePath(path)
	if path == "/" {
		return Node{Path: "/", Children: []string{"/openapi", "/mcp", "/custom"}}
	}

	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")

	switch len(segments) {
	case 1:
		return Node{Path: path, Children: c.groupNamesUnder(Group(segments[0]))}
	case 2:
		return Node{Path: path, Children: c.toolNamesUnder(Group(segments[0]), segments[1])}
	case 3:
		if t, ok := c.Get(path); ok {
			return Node{Path: path, IsLeaf: true, Tool: &t}
		}
	}
	return Node{Path: path}
}

func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return strings.TrimSuffix(p, "/")
}

func (c *Catalog) groupNamesUnder(group Group) []string {
	seen := map[string]bool{}
	for _, p := range c.order {
		t := c.tools[p]
		if t.Group == group && !seen[t.GroupName] {
			seen[t.GroupName] = true
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (c *Catalog) toolNamesUnder(group Group, groupName string) []string {
	var names []string
	for _, p := range c.order {
		t := c.tools[p]
		if t.Group == group && t.GroupName == groupName {
			names = append(names, t.Name)
		}
	}
	sort.Strings(names)
	return names
}
