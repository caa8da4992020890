package querybuilder

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/pgrest/pgrest/internal/apperr"
	"github.com/pgrest/pgrest/internal/catalog"
	"github.com/pgrest/pgrest/internal/fkresolver"
	"github.com/pgrest/pgrest/internal/sqlfrag"
)

// UpdateInput collects everything Build UPDATE needs. Set is an
// AssignmentList fragment; Where and Returning are already rewritten
// against the FK Resolver's identifier map. JoinNodes comes from the same
// Resolve call's Result.OrderedNodes and is non-empty only when the SET
// values, WHERE predicate, or RETURNING list reference foreign-key columns
// that require joins — in which case the statement takes the
// "UPDATE T AS t0 SET ... FROM <join-product> WHERE <joined-predicate>"
// form spec.md §4.5 describes.
type UpdateInput struct {
	Table     string
	Stats     *catalog.TableStats
	JoinNodes []fkresolver.Node
	Set       *sqlfrag.Fragment
	Where     *sqlfrag.Fragment
	Returning *sqlfrag.Fragment
}

// UpdateResult is the compiled UPDATE statement.
type UpdateResult struct {
	SQL    string
	Params []any
	Labels []string
}

// BuildUpdate compiles in into a single UPDATE statement. Each SET value
// that parsed as a bare string literal is bound as a driver parameter;
// every other value (including a rewritten dotted-path expression) is
// spliced in as deparsed SQL text, since it was itself validated by the
// parser and carries no user-controlled literal of its own.
func BuildUpdate(in UpdateInput) (*UpdateResult, error) {
	if in.Set == nil || len(in.Set.Items) == 0 {
		return nil, apperr.InvalidIdentifierf("update body must set at least one column")
	}
	for _, item := range in.Set.Items {
		if !in.Stats.HasColumn(item.Column) {
			return nil, apperr.UnknownColumnf("column %q not found on table %q", item.Column, in.Table)
		}
	}

	var b strings.Builder
	var params []any

	fmt.Fprintf(&b, "UPDATE %s AS t0 SET ", quoteIdent(in.Table))
	for i, item := range in.Set.Items {
		if i > 0 {
			b.WriteString(", ")
		}
		if lit, ok := stringLiteralValue(item.Node); ok {
			params = append(params, lit)
			fmt.Fprintf(&b, "%s = $%d", quoteIdent(item.Column), len(params))
			continue
		}
		text, err := sqlfrag.Deparse(item.Node)
		if err != nil {
			return nil, apperr.SyntaxErrorAt(0, err)
		}
		fmt.Fprintf(&b, "%s = %s", quoteIdent(item.Column), text)
	}

	if len(in.JoinNodes) > 0 {
		first := in.JoinNodes[0]
		fmt.Fprintf(&b, " FROM %s AS %s", quoteIdent(first.Table), first.Alias)
		for _, n := range in.JoinNodes[1:] {
			fmt.Fprintf(&b, " INNER JOIN %s AS %s ON %s.%s = %s.%s",
				quoteIdent(n.Table), n.Alias,
				n.ParentAlias, quoteIdent(n.ReferringColumn),
				n.Alias, quoteIdent(n.ReferredColumn))
		}
		// Only the first join needs its equality restated here: UPDATE ...
		// FROM has no ON clause for its first item, but every later item
		// already carries its equality in the INNER JOIN ... ON above.
		b.WriteString(" WHERE ")
		fmt.Fprintf(&b, "%s.%s = %s.%s", first.ParentAlias, quoteIdent(first.ReferringColumn), first.Alias, quoteIdent(first.ReferredColumn))
		if in.Where != nil {
			text, err := sqlfrag.Deparse(in.Where.Expr)
			if err != nil {
				return nil, apperr.SyntaxErrorAt(0, err)
			}
			fmt.Fprintf(&b, " AND %s", text)
		}
	} else if in.Where != nil {
		text, err := sqlfrag.Deparse(in.Where.Expr)
		if err != nil {
			return nil, apperr.SyntaxErrorAt(0, err)
		}
		fmt.Fprintf(&b, " WHERE %s", text)
	}

	var labels []string
	if in.Returning != nil && len(in.Returning.Items) > 0 {
		b.WriteString(" RETURNING ")
		for i, item := range in.Returning.Items {
			if i > 0 {
				b.WriteString(", ")
			}
			text, err := sqlfrag.Deparse(item.Node)
			if err != nil {
				return nil, apperr.SyntaxErrorAt(0, err)
			}
			label := item.Alias
			if label == "" {
				label = item.Label
			}
			fmt.Fprintf(&b, "%s AS %s", text, quoteLabel(label))
			labels = append(labels, label)
		}
	}

	return &UpdateResult{SQL: b.String(), Params: params, Labels: labels}, nil
}

// stringLiteralValue reports whether n is exactly a bare string literal
// (e.g. the "bob" in {"name": "bob"}), as opposed to an expression that
// merely happens to contain one.
func stringLiteralValue(n *pg_query.Node) (string, bool) {
	ac := n.GetAConst()
	if ac == nil {
		return "", false
	}
	s := ac.GetSval()
	if s == nil {
		return "", false
	}
	return s.GetSval(), true
}
