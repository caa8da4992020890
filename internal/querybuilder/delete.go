package querybuilder

import (
	"fmt"
	"strings"

	"github.com/pgrest/pgrest/internal/apperr"
	"github.com/pgrest/pgrest/internal/fkresolver"
	"github.com/pgrest/pgrest/internal/sqlfrag"
)

// DeleteInput collects everything Build DELETE needs. ConfirmDelete must be
// true; its absence is a boundary error the Request Adapter should already
// have caught, but the builder enforces it too so it can never be called
// incorrectly (spec.md §4.5 "Requires a confirm_delete flag; absence is a
// boundary error"). RETURNING may use dotted paths, selected via a USING
// clause over the same join chain WHERE already resolved against.
type DeleteInput struct {
	Table         string
	ConfirmDelete bool
	JoinNodes     []fkresolver.Node
	Where         *sqlfrag.Fragment
	Returning     *sqlfrag.Fragment
}

// DeleteResult is the compiled DELETE statement.
type DeleteResult struct {
	SQL    string
	Labels []string
}

// BuildDelete compiles in into a single DELETE statement.
func BuildDelete(in DeleteInput) (*DeleteResult, error) {
	if !in.ConfirmDelete {
		return nil, apperr.ConfirmationRequiredf("DELETE requires confirm_delete=true")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "DELETE FROM %s AS t0", quoteIdent(in.Table))

	needsUsing := len(in.JoinNodes) > 0 && (in.Where != nil || (in.Returning != nil && len(in.Returning.Items) > 0))
	if needsUsing {
		first := in.JoinNodes[0]
		fmt.Fprintf(&b, " USING %s AS %s", quoteIdent(first.Table), first.Alias)
		for _, n := range in.JoinNodes[1:] {
			fmt.Fprintf(&b, " INNER JOIN %s AS %s ON %s.%s = %s.%s",
				quoteIdent(n.Table), n.Alias,
				n.ParentAlias, quoteIdent(n.ReferringColumn),
				n.Alias, quoteIdent(n.ReferredColumn))
		}
	}

	// Only the first join needs its equality restated here: DELETE ...
	// USING has no ON clause for its first item, but every later item
	// already carries its equality in the INNER JOIN ... ON above.
	var whereParts []string
	if needsUsing {
		first := in.JoinNodes[0]
		whereParts = append(whereParts, fmt.Sprintf("%s.%s = %s.%s",
			first.ParentAlias, quoteIdent(first.ReferringColumn), first.Alias, quoteIdent(first.ReferredColumn)))
	}
	if in.Where != nil {
		text, err := sqlfrag.Deparse(in.Where.Expr)
		if err != nil {
			return nil, apperr.SyntaxErrorAt(0, err)
		}
		whereParts = append(whereParts, text)
	}
	if len(whereParts) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(whereParts, " AND "))
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

	return &DeleteResult{SQL: b.String(), Labels: labels}, nil
}
