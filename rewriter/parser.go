package rewriter

import "fmt"

// Parser builds a Program from a token stream using recursive descent with
// precedence climbing for expressions.
type Parser struct {
	toks []Token
	pos  int
}

// Parse lexes and parses src into a Program whose calls and loops carry
// only unsalted, position-based identifiers; call Rewrite on the result
// before interpreting it.
func Parse(src string) (*Program, error) {
	lx := NewLexer(src)
	toks, err := lx.Tokenize()
	if err != nil {
		return nil, err
	}
	p := &Parser{toks: toks}
	stmts, err := p.parseStatements(true)
	if err != nil {
		return nil, err
	}
	return &Program{Statements: stmts}, nil
}

func (p *Parser) cur() Token  { return p.toks[p.pos] }
func (p *Parser) advance() Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) atEOF() bool { return p.cur().Kind == TokEOF }

func (p *Parser) expectPunct(s string) (Token, error) {
	if p.cur().Kind == TokPunct && p.cur().Text == s {
		return p.advance(), nil
	}
	return Token{}, fmt.Errorf("rewriter: expected %q at %d, got %q", s, p.cur().Pos, p.cur().Text)
}

func (p *Parser) isPunct(s string) bool {
	return p.cur().Kind == TokPunct && p.cur().Text == s
}

func (p *Parser) isKeyword(s string) bool {
	return p.cur().Kind == TokKeyword && p.cur().Text == s
}

// peekPunct reports whether the token one past the current one is the given
// punctuation, without consuming anything. Used to look ahead for `=>`
// after a bare identifier, the only lookahead this grammar needs.
func (p *Parser) peekPunct(s string) bool {
	if p.pos+1 >= len(p.toks) {
		return false
	}
	t := p.toks[p.pos+1]
	return t.Kind == TokPunct && t.Text == s
}

// parseStatements parses statements until EOF (top==true) or a closing
// brace.
func (p *Parser) parseStatements(top bool) ([]Stmt, error) {
	var stmts []Stmt
	for {
		if top && p.atEOF() {
			return stmts, nil
		}
		if !top && p.isPunct("}") {
			return stmts, nil
		}
		st, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, st)
	}
}

func (p *Parser) parseBlock() ([]Stmt, error) {
	if _, err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	stmts, err := p.parseStatements(false)
	if err != nil {
		return nil, err
	}
	if _, err := p.expectPunct("}"); err != nil {
		return nil, err
	}
	return stmts, nil
}

func (p *Parser) parseStatement() (Stmt, error) {
	switch {
	case p.isKeyword("let"):
		p.advance()
		name := p.advance()
		if name.Kind != TokIdent {
			return nil, fmt.Errorf("rewriter: expected identifier after let at %d", name.Pos)
		}
		if _, err := p.expectPunct("="); err != nil {
			return nil, err
		}
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		p.consumeSemicolon()
		return LetStmt{Name: name.Text, Expr: expr}, nil

	case p.isKeyword("if"):
		p.advance()
		if _, err := p.expectPunct("("); err != nil {
			return nil, err
		}
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		then, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		var els []Stmt
		if p.isKeyword("else") {
			p.advance()
			els, err = p.parseBlock()
			if err != nil {
				return nil, err
			}
		}
		return IfStmt{Cond: cond, Then: then, Else: els}, nil

	case p.isKeyword("while"):
		pos := p.cur().Pos
		p.advance()
		if _, err := p.expectPunct("("); err != nil {
			return nil, err
		}
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		body, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		return WhileStmt{LoopID: fmt.Sprintf("loop@%d", pos), Cond: cond, Body: body}, nil

	case p.isKeyword("for"):
		pos := p.cur().Pos
		p.advance()
		if _, err := p.expectPunct("("); err != nil {
			return nil, err
		}
		if !p.isKeyword("let") {
			return nil, fmt.Errorf("rewriter: expected let in for-of at %d", p.cur().Pos)
		}
		p.advance()
		varName := p.advance()
		if varName.Kind != TokIdent {
			return nil, fmt.Errorf("rewriter: expected identifier in for-of at %d", varName.Pos)
		}
		if !p.isKeyword("of") {
			return nil, fmt.Errorf("rewriter: expected 'of' at %d", p.cur().Pos)
		}
		p.advance()
		iterable, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		body, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		return ForOfStmt{LoopID: fmt.Sprintf("loop@%d", pos), Var: varName.Text, Iterable: iterable, Body: body}, nil

	case p.isKeyword("return"):
		p.advance()
		if p.isPunct(";") {
			p.advance()
			return ReturnStmt{}, nil
		}
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		p.consumeSemicolon()
		return ReturnStmt{Expr: expr}, nil

	default:
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		p.consumeSemicolon()
		return ExprStmt{Expr: expr}, nil
	}
}

func (p *Parser) consumeSemicolon() {
	if p.isPunct(";") {
		p.advance()
	}
}

// Expression parsing: precedence-climbing over a small fixed operator set.
var precedence = map[string]int{
	"||": 1, "&&": 2,
	"==": 3, "!=": 3, "===": 3, "!==": 3,
	"<": 4, "<=": 4, ">": 4, ">=": 4,
	"+": 5, "-": 5,
	"*": 6, "/": 6, "%": 6,
}

func (p *Parser) parseExpr() (Expr, error) {
	return p.parseAssign()
}

func (p *Parser) parseAssign() (Expr, error) {
	left, err := p.parseBinary(0)
	if err != nil {
		return nil, err
	}
	if p.isPunct("=") {
		ident, ok := left.(Ident)
		if !ok {
			return nil, fmt.Errorf("rewriter: invalid assignment target at %d", p.cur().Pos)
		}
		p.advance()
		right, err := p.parseAssign()
		if err != nil {
			return nil, err
		}
		return AssignExpr{Name: ident.Name, Expr: right}, nil
	}
	return left, nil
}

func (p *Parser) parseBinary(minPrec int) (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		if p.cur().Kind != TokPunct {
			return left, nil
		}
		prec, ok := precedence[p.cur().Text]
		if !ok || prec < minPrec {
			return left, nil
		}
		op := p.advance().Text
		right, err := p.parseBinary(prec + 1)
		if err != nil {
			return nil, err
		}
		left = BinaryExpr{Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parseUnary() (Expr, error) {
	if p.isPunct("!") || p.isPunct("-") {
		op := p.advance().Text
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return UnaryExpr{Op: op, X: x}, nil
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() (Expr, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.isPunct("."):
			p.advance()
			prop := p.advance()
			if prop.Kind != TokIdent && prop.Kind != TokKeyword {
				return nil, fmt.Errorf("rewriter: expected property name at %d", prop.Pos)
			}
			expr = MemberExpr{Obj: expr, Prop: prop.Text}

		case p.isPunct("("):
			pos := p.cur().Pos
			p.advance()
			var args []Expr
			for !p.isPunct(")") {
				arg, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				args = append(args, arg)
				if p.isPunct(",") {
					p.advance()
				}
			}
			if _, err := p.expectPunct(")"); err != nil {
				return nil, err
			}
			expr = CallExpr{CallID: fmt.Sprintf("call@%d", pos), Callee: expr, Args: args}

		default:
			return expr, nil
		}
	}
}

func (p *Parser) parsePrimary() (Expr, error) {
	tok := p.cur()
	switch {
	case tok.Kind == TokNumber:
		p.advance()
		var v float64
		fmt.Sscanf(tok.Text, "%g", &v)
		return NumberLit{Value: v}, nil

	case tok.Kind == TokString:
		p.advance()
		return StringLit{Value: tok.Text}, nil

	case tok.Kind == TokKeyword && tok.Text == "true":
		p.advance()
		return BoolLit{Value: true}, nil

	case tok.Kind == TokKeyword && tok.Text == "false":
		p.advance()
		return BoolLit{Value: false}, nil

	case tok.Kind == TokKeyword && tok.Text == "null":
		p.advance()
		return NullLit{}, nil

	case tok.Kind == TokIdent && p.peekPunct("=>"):
		param := p.advance().Text
		p.advance() // consume "=>"
		body, err := p.parseAssign()
		if err != nil {
			return nil, err
		}
		return ArrowFunc{Param: param, Body: body}, nil

	case tok.Kind == TokIdent:
		p.advance()
		return Ident{Name: tok.Text}, nil

	case tok.Kind == TokPunct && tok.Text == "(":
		p.advance()
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return expr, nil

	case tok.Kind == TokPunct && tok.Text == "[":
		p.advance()
		var elems []Expr
		for !p.isPunct("]") {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			elems = append(elems, e)
			if p.isPunct(",") {
				p.advance()
			}
		}
		if _, err := p.expectPunct("]"); err != nil {
			return nil, err
		}
		return ArrayLit{Elems: elems}, nil

	case tok.Kind == TokPunct && tok.Text == "{":
		p.advance()
		var keys []string
		var vals []Expr
		for !p.isPunct("}") {
			key := p.advance()
			if key.Kind != TokIdent && key.Kind != TokString && key.Kind != TokKeyword {
				return nil, fmt.Errorf("rewriter: expected object key at %d", key.Pos)
			}
			if _, err := p.expectPunct(":"); err != nil {
				return nil, err
			}
			val, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			keys = append(keys, key.Text)
			vals = append(vals, val)
			if p.isPunct(",") {
				p.advance()
			}
		}
		if _, err := p.expectPunct("}"); err != nil {
			return nil, err
		}
		return ObjectLit{Keys: keys, Values: vals}, nil

	default:
		return nil, fmt.Errorf("rewriter: unexpected token %q at %d", tok.Text, tok.Pos)
	}
}
