package rewriter

import "strings"

// Rewrite walks a freshly parsed Program and produces the execution-ready
// form: every CallExpr gets a final, salted CallID; calls into the atp.* or
// api.* namespaces are marked IsPausing; atp.all(...) joins are folded into
// AllExpr nodes in which every element that is itself a call carries the
// join's BatchID; and every loop's LoopID is salted the same way.
//
// salt is per-execution (typically the ExecutionID) so that two separate
// executions of byte-identical source never collide on identifiers, while
// replaying the same execution from the top always reproduces the same
// identifiers — the property the Paused-State Store's History matching
// depends on.
func Rewrite(prog *Program, salt string) *Program {
	r := &rewriter{salt: salt}
	return &Program{Statements: r.stmts(prog.Statements)}
}

type rewriter struct {
	salt string
}

func (r *rewriter) salted(id string) string {
	return id + "#" + r.salt
}

func (r *rewriter) stmts(in []Stmt) []Stmt {
	out := make([]Stmt, len(in))
	for i, s := range in {
		out[i] = r.stmt(s)
	}
	return out
}

func (r *rewriter) stmt(s Stmt) Stmt {
	switch n := s.(type) {
	case LetStmt:
		return LetStmt{Name: n.Name, Expr: r.expr(n.Expr)}
	case ExprStmt:
		return ExprStmt{Expr: r.expr(n.Expr)}
	case IfStmt:
		return IfStmt{Cond: r.expr(n.Cond), Then: r.stmts(n.Then), Else: r.stmts(n.Else)}
	case WhileStmt:
		return WhileStmt{LoopID: r.salted(n.LoopID), Cond: r.expr(n.Cond), Body: r.stmts(n.Body)}
	case ForOfStmt:
		return ForOfStmt{LoopID: r.salted(n.LoopID), Var: n.Var, Iterable: r.expr(n.Iterable), Body: r.stmts(n.Body)}
	case ReturnStmt:
		return ReturnStmt{Expr: r.exprOrNil(n.Expr)}
	default:
		return s
	}
}

func (r *rewriter) exprOrNil(e Expr) Expr {
	if e == nil {
		return nil
	}
	return r.expr(e)
}

func (r *rewriter) expr(e Expr) Expr {
	switch n := e.(type) {
	case BinaryExpr:
		return BinaryExpr{Op: n.Op, Left: r.expr(n.Left), Right: r.expr(n.Right)}
	case UnaryExpr:
		return UnaryExpr{Op: n.Op, X: r.expr(n.X)}
	case MemberExpr:
		return MemberExpr{Obj: r.expr(n.Obj), Prop: n.Prop}
	case AssignExpr:
		return AssignExpr{Name: n.Name, Expr: r.expr(n.Expr)}
	case ArrayLit:
		return ArrayLit{Elems: r.exprs(n.Elems)}
	case ObjectLit:
		return ObjectLit{Keys: n.Keys, Values: r.exprs(n.Values)}
	case CallExpr:
		return r.call(n)
	default:
		return e // literals, idents need no rewriting
	}
}

func (r *rewriter) exprs(in []Expr) []Expr {
	out := make([]Expr, len(in))
	for i, e := range in {
		out[i] = r.expr(e)
	}
	return out
}

func (r *rewriter) call(n CallExpr) Expr {
	path := calleePath(n.Callee)
	if path == "atp.all" && len(n.Args) == 1 {
		batchID := r.salted(n.CallID)
		if arr, ok := n.Args[0].(ArrayLit); ok {
			elems := make([]Expr, len(arr.Elems))
			for i, el := range arr.Elems {
				elems[i] = r.assignBatch(el, batchID)
			}
			return AllExpr{BatchID: batchID, Elems: elems}
		}
		if mapAll, ok := r.tryMapForm(n.Args[0], batchID); ok {
			return mapAll
		}
	}

	id := r.salted(n.CallID)
	return CallExpr{
		CallID:    id,
		BatchID:   id,
		IsPausing: isPausingPath(path),
		Path:      path,
		Callee:    r.expr(n.Callee),
		Args:      r.exprs(n.Args),
	}
}

// assignBatch rewrites one element of an atp.all(...) join. An element that
// is itself a call gets its own salted CallID plus the join's BatchID, so
// batched pausing calls still get distinct CallIDs (needed to match
// individual results) while sharing one BatchID (needed to pause as a
// single request). Any other element goes through the normal rewrite pass.
func (r *rewriter) assignBatch(e Expr, batchID string) Expr {
	call, ok := e.(CallExpr)
	if !ok {
		return r.expr(e)
	}
	path := calleePath(call.Callee)
	id := r.salted(call.CallID)
	return CallExpr{
		CallID:    id,
		BatchID:   batchID,
		IsPausing: isPausingPath(path),
		Path:      path,
		Callee:    r.expr(call.Callee),
		Args:      r.exprs(call.Args),
	}
}

// tryMapForm recognizes the array-mapping batching form
// `atp.all(items.map(x => api.g.op(x, ...)))`: callArg must be a `.map(fn)`
// call whose sole argument is an arrow function whose body is itself a
// single direct pausing call. Anything else (a non-`.map` call, a
// multi-statement arrow, a non-pausing body) isn't this form, and the
// caller falls through to treating callArg as an ordinary expression.
func (r *rewriter) tryMapForm(callArg Expr, batchID string) (MapAllExpr, bool) {
	mapCall, ok := callArg.(CallExpr)
	if !ok {
		return MapAllExpr{}, false
	}
	member, ok := mapCall.Callee.(MemberExpr)
	if !ok || member.Prop != "map" || len(mapCall.Args) != 1 {
		return MapAllExpr{}, false
	}
	arrow, ok := mapCall.Args[0].(ArrowFunc)
	if !ok {
		return MapAllExpr{}, false
	}
	inner, ok := arrow.Body.(CallExpr)
	if !ok {
		return MapAllExpr{}, false
	}
	path := calleePath(inner.Callee)
	if !isPausingPath(path) {
		return MapAllExpr{}, false
	}
	return MapAllExpr{
		BatchID:  batchID,
		Iterable: r.expr(member.Obj),
		Param:    arrow.Param,
		Path:     path,
		Callee:   r.expr(inner.Callee),
		Args:     r.exprs(inner.Args),
	}, true
}

// calleePath renders a member-expression chain rooted at an identifier as a
// dotted path, e.g. api.stripe.createCharge, or "" if the callee isn't a
// simple member chain.
func calleePath(e Expr) string {
	var parts []string
	for {
		switch n := e.(type) {
		case Ident:
			parts = append([]string{n.Name}, parts...)
			return strings.Join(parts, ".")
		case MemberExpr:
			parts = append([]string{n.Prop}, parts...)
			e = n.Obj
		default:
			return ""
		}
	}
}

// isPausingPath reports whether a call to path may suspend the execution.
// atp.cache.* is serviced synchronously in-process (the Cache API backend
// is local to the server, not the caller), so it is excluded even though it
// shares the atp. namespace prefix.
func isPausingPath(path string) bool {
	if strings.HasPrefix(path, "atp.cache.") {
		return false
	}
	return strings.HasPrefix(path, "atp.") || strings.HasPrefix(path, "api.")
}
