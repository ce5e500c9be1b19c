package catalog

import (
	"sort"
	"strings"
)

// SearchResult is one ranked hit from Search.
type SearchResult struct {
	Tool  ToolSpec
	Score float64
}

// Search ranks the catalog's tools against a free-text query using
// substring matches (name, description, tags) plus token overlap, scoped to
// the same visibility rules as Scoped.
func (c *Catalog) Search(query string, scope []string) []SearchResult {
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil
	}

	var results []SearchResult
	for _, t := range c.Scoped(scope) {
		score := scoreTool(t, query, terms)
		if score > 0 {
			results = append(results, SearchResult{Tool: t, Score: score})
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}

func scoreTool(t ToolSpec, query string, terms []string) float64 {
	var score float64

	haystack := strings.ToLower(t.Name + " " + t.Description + " " + strings.Join(t.Tags, " "))
	if strings.Contains(haystack, strings.ToLower(query)) {
		score += 5
	}

	haystackTokens := tokenize(haystack)
	tokenSet := make(map[string]bool, len(haystackTokens))
	for _, tok := range haystackTokens {
		tokenSet[tok] = true
	}
	for _, term := range terms {
		if tokenSet[term] {
			score++
		}
	}

	if strings.Contains(strings.ToLower(t.Name), strings.ToLower(query)) {
		score += 3
	}

	return score
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	out := fields[:0:0]
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
