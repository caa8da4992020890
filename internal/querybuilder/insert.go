package querybuilder

import (
	"fmt"
	"strings"

	"github.com/pgrest/pgrest/internal/apperr"
	"github.com/pgrest/pgrest/internal/catalog"
)

// InsertInput collects everything Build INSERT needs. Rows are the decoded
// JSON body objects; RETURNING is restricted to plain column names of the
// target table (spec.md §4.5: dotted paths are rejected, since Postgres
// cannot join on RETURNING).
type InsertInput struct {
	Table            string
	Stats            *catalog.TableStats
	Rows             []map[string]any
	ConflictAction   string // "", "nothing", or "update"
	ConflictTarget   []string
	ReturningColumns []string
}

// InsertResult is the compiled INSERT statement.
type InsertResult struct {
	SQL    string
	Params []any
	Labels []string
}

// BuildInsert compiles in into a single multi-row INSERT statement.
func BuildInsert(in InsertInput) (*InsertResult, error) {
	if len(in.Rows) == 0 {
		return nil, apperr.InvalidIdentifierf("insert body must contain at least one row")
	}

	keys := unionKeys(in.Rows)
	for _, k := range keys {
		if !in.Stats.HasColumn(k) {
			return nil, apperr.UnknownColumnf("column %q not found on table %q", k, in.Table)
		}
	}
	for _, c := range in.ReturningColumns {
		if strings.Contains(c, ".") {
			return nil, apperr.UnsupportedFeaturef("RETURNING does not support dotted paths on INSERT: %q", c)
		}
		if !in.Stats.HasColumn(c) {
			return nil, apperr.UnknownColumnf("column %q not found on table %q", c, in.Table)
		}
	}
	if in.ConflictAction == "update" && len(in.ConflictTarget) == 0 {
		return nil, apperr.InvalidIdentifierf("conflict_action=update requires a conflict_target")
	}

	var b strings.Builder
	var params []any

	fmt.Fprintf(&b, "INSERT INTO %s (", quoteIdent(in.Table))
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(quoteIdent(k))
	}
	b.WriteString(") VALUES ")

	for ri, row := range in.Rows {
		if ri > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for ki, k := range keys {
			if ki > 0 {
				b.WriteString(", ")
			}
			params = append(params, row[k]) // absent key -> untyped nil -> SQL NULL
			fmt.Fprintf(&b, "$%d", len(params))
		}
		b.WriteString(")")
	}

	switch in.ConflictAction {
	case "":
		// no ON CONFLICT clause
	case "nothing", "update":
		b.WriteString(" ON CONFLICT")
		if len(in.ConflictTarget) > 0 {
			b.WriteString(" (")
			for i, c := range in.ConflictTarget {
				if i > 0 {
					b.WriteString(", ")
				}
				b.WriteString(quoteIdent(c))
			}
			b.WriteString(")")
		}
		if in.ConflictAction == "nothing" {
			b.WriteString(" DO NOTHING")
		} else {
			b.WriteString(" DO UPDATE SET ")
			updatable := excludeCols(keys, in.ConflictTarget)
			if len(updatable) == 0 {
				return nil, apperr.InvalidIdentifierf("conflict_action=update has no columns left to update after excluding conflict_target")
			}
			for i, k := range updatable {
				if i > 0 {
					b.WriteString(", ")
				}
				fmt.Fprintf(&b, "%s = EXCLUDED.%s", quoteIdent(k), quoteIdent(k))
			}
		}
	default:
		return nil, apperr.InvalidIdentifierf("unknown conflict_action %q", in.ConflictAction)
	}

	var labels []string
	if len(in.ReturningColumns) > 0 {
		b.WriteString(" RETURNING ")
		for i, c := range in.ReturningColumns {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s AS %s", quoteIdent(c), quoteLabel(c))
			labels = append(labels, c)
		}
	}

	return &InsertResult{SQL: b.String(), Params: params, Labels: labels}, nil
}
