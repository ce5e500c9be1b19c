// Package sandbox implements the Sandbox Host (C7): it validates submitted
// code against a deny-list of forbidden identifiers, then interprets the
// Program Rewriter's output against the atp/api capability namespaces under
// wall-clock, call-count and memory limits.
package sandbox

import (
	"fmt"

	"github.com/look4regev/agent-tool-protocol-sub002/rewriter"
)

// forbiddenIdentifiers blocks the classic sandbox-escape surface: anything
// that could reach the host process, reflect into the interpreter's own
// internals, or re-enter code generation dynamically. This is a
// deny-list over a grammar that is already a small, closed subset of
// ECMAScript (no function declarations, no classes, no imports) rather than
// a general-purpose one, so the deny-list only has to cover identifiers a
// program could still spell even inside that subset.
var forbiddenIdentifiers = map[string]bool{
	"eval": true, "Function": true, "constructor": true,
	"__proto__": true, "prototype": true, "global": true,
	"globalThis": true, "process": true, "require": true, "import": true,
	"Reflect": true, "Proxy": true, "this": true,
	"module": true, "exports": true, "buffer": true,
}

// ValidationError reports a single rejected construct.
type ValidationError struct {
	Identifier string
	Pos        int
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("sandbox: forbidden construct %q at position %d", e.Identifier, e.Pos)
}

// Validate statically rejects source containing a forbidden identifier
// before it is ever parsed into a Program. Lexical, not semantic: it runs on
// the raw token stream so it can't be bypassed by an as-yet-unparsed
// expression shape.
func Validate(src string) error {
	lx := rewriter.NewLexer(src)
	toks, err := lx.Tokenize()
	if err != nil {
		return err
	}
	for _, t := range toks {
		if t.Kind != rewriter.TokIdent && t.Kind != rewriter.TokKeyword {
			continue
		}
		if forbiddenIdentifiers[t.Text] {
			return &ValidationError{Identifier: t.Text, Pos: t.Pos}
		}
	}
	return nil
}
