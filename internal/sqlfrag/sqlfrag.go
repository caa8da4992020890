/*
Package sqlfrag parses the small SQL fragments that arrive as query-string
values (columns=, where=, order_by=, a SET value, ...) into pg_query_go's
typed AST, the same representation pg_lineage/rewrite_pks.go builds and
mutates by hand for its PK-injection pass. Fragments never arrive as full
statements: each one is wrapped in a synthetic statement against a throwaway
relation, parsed, and unwrapped, so the caller gets back exactly the
sub-tree pg_query produced for the fragment plus a firm rejection of
anything that smuggled in a second statement.

The package intentionally standardizes on pg_query_go/v6's typed node API
rather than the v5 ParseToJSON-plus-map[string]any approach pg_lineage's
resolver.go uses: the fkresolver and querybuilder packages built on top of
this one need a single mutable AST they can rewrite and hand to
pg_query.Deparse, not a parsed-then-reflected JSON tree.
*/
package sqlfrag

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/pgrest/pgrest/internal/apperr"
)

// Shape selects which synthetic statement a fragment is wrapped in.
type Shape int

const (
	// Expression is a boolean predicate (a where= value).
	Expression Shape = iota
	// ColumnList is a comma-separated list of column references/expressions,
	// each optionally followed by "AS alias" (a columns=/group_by= value).
	ColumnList
	// OrderList is a comma-separated list of sortable expressions, each
	// optionally followed by ASC/DESC (an order_by= value).
	OrderList
	// AssignmentList is a comma-separated "column = expr" list (a PUT body's
	// SET clause).
	AssignmentList
)

func (s Shape) String() string {
	switch s {
	case Expression:
		return "expression"
	case ColumnList:
		return "column list"
	case OrderList:
		return "order list"
	case AssignmentList:
		return "assignment list"
	default:
		return "fragment"
	}
}

// ListItem is one element of a ColumnList, OrderList, or AssignmentList.
type ListItem struct {
	Node   *pg_query.Node // the parsed expression
	Label  string         // deparsed text of Node, for response-projection labels
	Alias  string         // "AS alias", ColumnList only; empty if absent
	Column string         // the assigned-to column name, AssignmentList only
	Desc   bool           // ORDER BY ... DESC, OrderList only
}

// Fragment is the parsed form of one query-string or request-body value.
type Fragment struct {
	Shape Shape
	Expr  *pg_query.Node // Expression shape only
	Items []ListItem     // ColumnList / OrderList / AssignmentList
}

// anchorRelation never needs to exist: the synthetic statement is parsed,
// not executed, and the relation name is discarded once the fragment's
// sub-tree is pulled back out.
const anchorRelation = "_pgrest_fragment_anchor_"

// Parse wraps raw in a synthetic statement matching shape, parses it, and
// returns the fragment's own sub-tree. A raw value containing a stray ";"
// that closes the synthetic statement and opens another is rejected as
// UnsupportedFeature, since pg_query then reports more than one top-level
// statement.
func Parse(raw string, shape Shape) (*Fragment, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, apperr.SyntaxErrorAt(0, fmt.Errorf("empty %s", shape))
	}

	var wrapped string
	switch shape {
	case Expression:
		wrapped = fmt.Sprintf("SELECT 1 FROM %s WHERE %s", anchorRelation, trimmed)
	case ColumnList:
		wrapped = fmt.Sprintf("SELECT %s FROM %s", trimmed, anchorRelation)
	case OrderList:
		wrapped = fmt.Sprintf("SELECT * FROM %s ORDER BY %s", anchorRelation, trimmed)
	case AssignmentList:
		wrapped = fmt.Sprintf("UPDATE %s SET %s", anchorRelation, trimmed)
	default:
		return nil, fmt.Errorf("sqlfrag: unknown shape %d", shape)
	}

	tree, err := pg_query.Parse(wrapped)
	if err != nil {
		return nil, apperr.SyntaxErrorAt(0, err)
	}
	if len(tree.GetStmts()) != 1 {
		return nil, apperr.UnsupportedFeaturef("%s must be a single expression, not multiple statements", shape)
	}

	stmt := tree.GetStmts()[0].GetStmt()
	f := &Fragment{Shape: shape}

	switch shape {
	case Expression:
		sel := stmt.GetSelectStmt()
		if sel == nil || sel.GetWhereClause() == nil {
			return nil, apperr.SyntaxErrorAt(0, fmt.Errorf("not a valid expression"))
		}
		f.Expr = sel.GetWhereClause()
		if err := checkSupported(f.Expr); err != nil {
			return nil, err
		}

	case ColumnList:
		sel := stmt.GetSelectStmt()
		if sel == nil {
			return nil, apperr.SyntaxErrorAt(0, fmt.Errorf("not a valid column list"))
		}
		for _, n := range sel.GetTargetList() {
			rt := n.GetResTarget()
			if rt == nil || rt.GetVal() == nil {
				continue
			}
			if err := checkSupported(rt.GetVal()); err != nil {
				return nil, err
			}
			f.Items = append(f.Items, ListItem{
				Node:  rt.GetVal(),
				Alias: rt.GetName(),
				Label: labelFor(rt.GetVal()),
			})
		}

	case OrderList:
		sel := stmt.GetSelectStmt()
		if sel == nil {
			return nil, apperr.SyntaxErrorAt(0, fmt.Errorf("not a valid order list"))
		}
		for _, n := range sel.GetSortClause() {
			sb := n.GetSortBy()
			if sb == nil || sb.GetNode() == nil {
				continue
			}
			if err := checkSupported(sb.GetNode()); err != nil {
				return nil, err
			}
			f.Items = append(f.Items, ListItem{
				Node:  sb.GetNode(),
				Label: labelFor(sb.GetNode()),
				Desc:  sb.GetSortbyDir() == pg_query.SortByDir_SORTBY_DESC,
			})
		}

	case AssignmentList:
		up := stmt.GetUpdateStmt()
		if up == nil {
			return nil, apperr.SyntaxErrorAt(0, fmt.Errorf("not a valid assignment list"))
		}
		for _, n := range up.GetTargetList() {
			rt := n.GetResTarget()
			if rt == nil || rt.GetVal() == nil {
				continue
			}
			if err := checkSupported(rt.GetVal()); err != nil {
				return nil, err
			}
			f.Items = append(f.Items, ListItem{
				Node:   rt.GetVal(),
				Column: rt.GetName(),
				Label:  labelFor(rt.GetVal()),
			})
		}
	}

	return f, nil
}

// ColumnRefParts returns the dotted segments of a bare column reference
// (e.g. ["child", "company_id", "name"] for child.company_id.name), or
// ok=false if n isn't a ColumnRef. A bare "*" field is returned as the
// literal segment "*".
func ColumnRefParts(n *pg_query.Node) (parts []string, ok bool) {
	cr := n.GetColumnRef()
	if cr == nil {
		return nil, false
	}
	out := make([]string, 0, len(cr.GetFields()))
	for _, field := range cr.GetFields() {
		if field.GetAStar() != nil {
			out = append(out, "*")
			continue
		}
		if s := field.GetString_(); s != nil {
			out = append(out, s.GetSval())
		}
	}
	return out, true
}

// CollectIdentifiers returns every dotted column path referenced anywhere
// in f (including nested inside function calls, CASE, casts, ...), in
// first-appearance order with duplicates removed. The FK Resolver walks
// this list to build its rewrite map (spec.md §4.4).
func CollectIdentifiers(f *Fragment) []string {
	seen := make(map[string]struct{})
	var order []string
	collect := func(n *pg_query.Node) error {
		if parts, ok := ColumnRefParts(n); ok {
			path := strings.Join(parts, ".")
			if _, dup := seen[path]; !dup {
				seen[path] = struct{}{}
				order = append(order, path)
			}
		}
		return nil
	}

	switch f.Shape {
	case Expression:
		_ = walk(f.Expr, collect)
	default:
		for _, item := range f.Items {
			_ = walk(item.Node, collect)
		}
	}
	return order
}

// Rewrite replaces every ColumnRef in f whose dotted path is a key of
// rewrite with a new ColumnRef built from the corresponding value (itself a
// dotted path, typically "<alias>.<column>"). It mutates f's nodes in
// place, mirroring rewrite_pks.go's in-place AST mutation.
func Rewrite(f *Fragment, rewrite map[string]string) {
	apply := func(n *pg_query.Node) error {
		cr := n.GetColumnRef()
		if cr == nil {
			return nil
		}
		parts, _ := ColumnRefParts(n)
		newPath, ok := rewrite[strings.Join(parts, ".")]
		if !ok {
			return nil
		}
		segs := strings.Split(newPath, ".")
		fields := make([]*pg_query.Node, 0, len(segs))
		for _, s := range segs {
			fields = append(fields, strNode(s))
		}
		cr.Fields = fields
		return nil
	}

	switch f.Shape {
	case Expression:
		_ = walk(f.Expr, apply)
	default:
		for _, item := range f.Items {
			_ = walk(item.Node, apply)
		}
	}
}

// checkSupported rejects the constructs spec.md §4.3 explicitly excludes
// from fragments: BETWEEN, bit-string literals, and subqueries.
func checkSupported(n *pg_query.Node) error {
	return walk(n, func(x *pg_query.Node) error {
		if ae := x.GetAExpr(); ae != nil {
			switch ae.GetKind() {
			case pg_query.A_Expr_Kind_AEXPR_BETWEEN,
				pg_query.A_Expr_Kind_AEXPR_BETWEEN_SYM,
				pg_query.A_Expr_Kind_AEXPR_NOT_BETWEEN,
				pg_query.A_Expr_Kind_AEXPR_NOT_BETWEEN_SYM:
				return apperr.UnsupportedFeaturef("BETWEEN is not supported in query fragments; use two comparisons joined with and()")
			}
		}
		if ac := x.GetAConst(); ac != nil && ac.GetBsval() != nil {
			return apperr.UnsupportedFeaturef("bit-string literals are not supported in query fragments")
		}
		if x.GetSubLink() != nil {
			return apperr.UnsupportedFeaturef("subqueries are not supported in query fragments")
		}
		return nil
	})
}

// walk visits n and recurses into every expression-shaped child pg_lineage's
// rewriteExprForSublinks also descends into (AExpr/BoolExpr/FuncCall/
// CaseExpr/NullIfExpr/CoalesceExpr/TypeCast/MinMaxExpr), stopping at the
// first error fn returns.
func walk(n *pg_query.Node, fn func(*pg_query.Node) error) error {
	if n == nil {
		return nil
	}
	if err := fn(n); err != nil {
		return err
	}

	switch {
	case n.GetAExpr() != nil:
		ae := n.GetAExpr()
		if err := walk(ae.GetLexpr(), fn); err != nil {
			return err
		}
		if err := walk(ae.GetRexpr(), fn); err != nil {
			return err
		}
	case n.GetBoolExpr() != nil:
		for _, a := range n.GetBoolExpr().GetArgs() {
			if err := walk(a, fn); err != nil {
				return err
			}
		}
	case n.GetFuncCall() != nil:
		for _, a := range n.GetFuncCall().GetArgs() {
			if err := walk(a, fn); err != nil {
				return err
			}
		}
	case n.GetCaseExpr() != nil:
		ce := n.GetCaseExpr()
		for _, w := range ce.GetArgs() {
			if cw := w.GetCaseWhen(); cw != nil {
				if err := walk(cw.GetExpr(), fn); err != nil {
					return err
				}
				if err := walk(cw.GetResult(), fn); err != nil {
					return err
				}
			}
		}
		if err := walk(ce.GetDefresult(), fn); err != nil {
			return err
		}
	case n.GetNullIfExpr() != nil:
		for _, a := range n.GetNullIfExpr().GetArgs() {
			if err := walk(a, fn); err != nil {
				return err
			}
		}
	case n.GetCoalesceExpr() != nil:
		for _, a := range n.GetCoalesceExpr().GetArgs() {
			if err := walk(a, fn); err != nil {
				return err
			}
		}
	case n.GetTypeCast() != nil:
		if err := walk(n.GetTypeCast().GetArg(), fn); err != nil {
			return err
		}
	case n.GetMinMaxExpr() != nil:
		for _, a := range n.GetMinMaxExpr().GetArgs() {
			if err := walk(a, fn); err != nil {
				return err
			}
		}
	case n.GetList() != nil:
		for _, a := range n.GetList().GetItems() {
			if err := walk(a, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// labelFor deparses n back to SQL text for use as a default response-
// projection label (e.g. "child.company_id.name" or "count(*)"). ColumnRefs
// are rendered directly from their fields; anything else goes through a
// throwaway single-target SELECT and pg_query.Deparse, the cheapest way to
// get canonical text for an arbitrary expression node.
func labelFor(n *pg_query.Node) string {
	if parts, ok := ColumnRefParts(n); ok {
		return strings.Join(parts, ".")
	}
	text, err := deparseExpr(n)
	if err != nil {
		return "expr"
	}
	return text
}

// Deparse renders n back to canonical SQL text. Callers use it after
// [Rewrite] has mutated a fragment's identifiers, to get the final text a
// statement builder splices into its own SQL.
func Deparse(n *pg_query.Node) (string, error) {
	return deparseExpr(n)
}

func deparseExpr(n *pg_query.Node) (string, error) {
	rt := &pg_query.Node{Node: &pg_query.Node_ResTarget{ResTarget: &pg_query.ResTarget{Val: n}}}
	sel := &pg_query.Node{Node: &pg_query.Node_SelectStmt{SelectStmt: &pg_query.SelectStmt{
		TargetList: []*pg_query.Node{rt},
	}}}
	res := &pg_query.ParseResult{Stmts: []*pg_query.RawStmt{{Stmt: sel}}}
	out, err := pg_query.Deparse(res)
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(out, "SELECT "), nil
}

func strNode(s string) *pg_query.Node {
	return &pg_query.Node{Node: &pg_query.Node_String_{String_: &pg_query.String{Sval: s}}}
}
