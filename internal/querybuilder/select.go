package querybuilder

import (
	"fmt"
	"strings"

	"github.com/pgrest/pgrest/internal/apperr"
	"github.com/pgrest/pgrest/internal/catalog"
	"github.com/pgrest/pgrest/internal/sqlfrag"
)

const defaultLimit = 10000

// SelectInput collects everything Build SELECT needs. Columns/Distinct/
// Where/GroupBy/OrderBy are already rewritten (sqlfrag.Rewrite has been
// applied against the FK Resolver's identifier map) and Joins comes from
// the same Resolve call.
type SelectInput struct {
	Table    string
	Stats    *catalog.TableStats
	Joins    []string
	Columns  *sqlfrag.Fragment // nil => introspection response, no SQL issued
	Distinct *sqlfrag.Fragment
	Where    *sqlfrag.Fragment
	GroupBy  *sqlfrag.Fragment
	OrderBy  *sqlfrag.Fragment
	Limit    int
	Offset   int
}

// Introspection is the "introspection response derived from Table Stats"
// spec.md §4.5 returns in place of SQL when Columns is absent.
type Introspection struct {
	Table        string
	Columns      []catalog.Column
	PrimaryKey   []string
	References   []catalog.ForeignKey
	ReferencedBy []catalog.IncomingReference
}

// SelectResult is either an Introspection or a compiled SELECT statement.
type SelectResult struct {
	Introspection *Introspection
	SQL           string
	Labels        []string
}

// BuildSelect compiles in into a SELECT statement, or, when in.Columns is
// nil, returns the table's introspection summary without issuing SQL.
func BuildSelect(in SelectInput) (*SelectResult, error) {
	if in.Columns == nil {
		return &SelectResult{Introspection: &Introspection{
			Table:        in.Stats.Table,
			Columns:      in.Stats.Columns,
			PrimaryKey:   in.Stats.PrimaryKey,
			References:   in.Stats.References,
			ReferencedBy: in.Stats.ReferencedBy,
		}}, nil
	}

	var b strings.Builder
	b.WriteString("SELECT ")

	if in.Distinct != nil && len(in.Distinct.Items) > 0 {
		b.WriteString("DISTINCT ON (")
		if err := writeExprList(&b, in.Distinct.Items); err != nil {
			return nil, err
		}
		b.WriteString(") ")
	}

	labels := make([]string, 0, len(in.Columns.Items))
	for i, item := range in.Columns.Items {
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

	fmt.Fprintf(&b, " FROM %s AS t0", quoteIdent(in.Table))
	for _, j := range in.Joins {
		b.WriteString(" ")
		b.WriteString(j)
	}

	if in.Where != nil {
		text, err := sqlfrag.Deparse(in.Where.Expr)
		if err != nil {
			return nil, apperr.SyntaxErrorAt(0, err)
		}
		fmt.Fprintf(&b, " WHERE %s", text)
	}

	if in.GroupBy != nil && len(in.GroupBy.Items) > 0 {
		b.WriteString(" GROUP BY ")
		if err := writeExprList(&b, in.GroupBy.Items); err != nil {
			return nil, err
		}
	}

	if in.OrderBy != nil && len(in.OrderBy.Items) > 0 {
		b.WriteString(" ORDER BY ")
		for i, item := range in.OrderBy.Items {
			if i > 0 {
				b.WriteString(", ")
			}
			text, err := sqlfrag.Deparse(item.Node)
			if err != nil {
				return nil, apperr.SyntaxErrorAt(0, err)
			}
			b.WriteString(text)
			if item.Desc {
				b.WriteString(" DESC")
			}
		}
	}

	limit := in.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	fmt.Fprintf(&b, " LIMIT %d OFFSET %d", limit, maxInt(in.Offset, 0))

	return &SelectResult{SQL: b.String(), Labels: labels}, nil
}

func writeExprList(b *strings.Builder, items []sqlfrag.ListItem) error {
	for i, item := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		text, err := sqlfrag.Deparse(item.Node)
		if err != nil {
			return apperr.SyntaxErrorAt(0, err)
		}
		b.WriteString(text)
	}
	return nil
}
