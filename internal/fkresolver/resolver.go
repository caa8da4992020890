/*
Package fkresolver implements the FK Resolver, spec.md §4.4's "key
algorithm": given a target table and the set of dotted identifiers
collected from a request's parsed fragments, it classifies each path
against the live catalog, merges the paths sharing a prefix into one tree
of FK hops, assigns stable "t{n}" aliases in depth-first pre-order, and
produces the INNER JOIN chain plus the dotted-path → "alias.column"
rewrite map the Statement Builder applies to every fragment.

The path-walking logic is grounded on pg_lineage/resolver.go's
resolveColumn (segment-by-segment traversal against a table's known
columns) and the alias bookkeeping on rewrite_pks.go's
collectAliasesAndRecurse, but the tree itself is an arena (see tree.go)
rather than either file's pointer-graph-of-maps, and cycle detection is an
explicit active-path-stack membership test rather than left undetected.
*/
package fkresolver

import (
	"context"
	"strings"

	"github.com/pgrest/pgrest/internal/apperr"
	"github.com/pgrest/pgrest/internal/catalog"
)

// StatsGetter is the subset of statscache.Cache the resolver needs. Tests
// substitute an in-memory stub.
type StatsGetter interface {
	Get(ctx context.Context, table string) (*catalog.TableStats, error)
}

// chainHop is one FK traversal step discovered while walking a dotted path.
type chainHop struct {
	referringColumn string
	referredTable   string
	referredColumn  string
}

// Result is the (fk_tree, join_list, identifier_rewrite_map) triple of
// spec.md §4.4.
type Result struct {
	Tree    *Tree
	Joins   []string
	Rewrite map[string]string
	// OrderedNodes lists the tree's non-root nodes in the same depth-first
	// pre-order as Joins, for builders (Build UPDATE's "FROM <join-product>"
	// form) that need each join's structured Table/Alias/ReferringColumn/
	// ReferredColumn rather than its preformatted SQL text.
	OrderedNodes []Node
}

// pendingRewrite defers a leaf rewrite until alias assignment has run,
// since the final alias for a multi-segment path's reached table isn't
// known until the whole tree is built.
type pendingRewrite struct {
	id      string
	nodeIdx int
	column  string
}

// Resolve runs spec.md §4.4's algorithm for one target table against the
// union of dotted identifiers gathered from a request's parsed fragments.
// identifiers should already be deduplicated in first-occurrence order
// (sqlfrag.CollectIdentifiers does this per fragment; the caller
// concatenates across fragments preserving spec.md §4.4's enumeration
// order: columns, where, group_by, order_by, returning, set).
func Resolve(ctx context.Context, cache StatsGetter, target string, identifiers []string, maxDepth int) (*Result, error) {
	rootStats, err := cache.Get(ctx, target)
	if err != nil {
		return nil, wrapNotFound(err)
	}

	b := newBuilder(target)
	rewrite := make(map[string]string, len(identifiers))
	var pending []pendingRewrite

	statsOf := map[string]*catalog.TableStats{target: rootStats}
	getStats := func(table string) (*catalog.TableStats, error) {
		if s, ok := statsOf[table]; ok {
			return s, nil
		}
		s, err := cache.Get(ctx, table)
		if err != nil {
			return nil, err
		}
		statsOf[table] = s
		return s, nil
	}

	for _, id := range identifiers {
		parts := strings.Split(id, ".")

		if len(parts) == 1 {
			if !rootStats.HasColumn(parts[0]) {
				return nil, apperr.UnknownColumnf("column %q not found on table %q", parts[0], target)
			}
			rewrite[id] = "t0." + parts[0]
			continue
		}

		if len(parts)-1 > maxDepth {
			return nil, apperr.DepthExceededf("path %q exceeds maximum foreign-key depth %d", id, maxDepth)
		}

		cur := rootStats
		visited := map[string]struct{}{target: {}}
		var hops []chainHop

		for k, seg := range parts {
			last := k == len(parts)-1
			if !last {
				fk, ok := cur.ForeignKeyFor(seg)
				if !ok {
					return nil, apperr.UnknownForeignKeyf("%q is not a foreign key of %q", seg, cur.Table)
				}
				if _, seen := visited[fk.ReferredTable]; seen {
					return nil, apperr.CycleDetectedf("path %q revisits table %q", id, fk.ReferredTable)
				}
				next, err := getStats(fk.ReferredTable)
				if err != nil {
					return nil, wrapNotFound(err)
				}
				hops = append(hops, chainHop{
					referringColumn: fk.ReferringColumn,
					referredTable:   fk.ReferredTable,
					referredColumn:  fk.ReferredColumn,
				})
				visited[fk.ReferredTable] = struct{}{}
				cur = next
				continue
			}

			if !cur.HasColumn(seg) {
				return nil, apperr.UnknownColumnf("column %q not found on table %q", seg, cur.Table)
			}
			endIdx := b.addChain(hops)
			pending = append(pending, pendingRewrite{id: id, nodeIdx: endIdx, column: seg})
		}
	}

	joins, order := b.assignAliasesAndJoins()

	for _, p := range pending {
		rewrite[p.id] = b.nodes[p.nodeIdx].Alias + "." + p.column
	}

	ordered := make([]Node, 0, len(order))
	for _, idx := range order {
		ordered = append(ordered, b.nodes[idx])
	}

	return &Result{
		Tree:         &Tree{Nodes: b.nodes},
		Joins:        joins,
		Rewrite:      rewrite,
		OrderedNodes: ordered,
	}, nil
}

func wrapNotFound(err error) error {
	if nf, ok := err.(*catalog.ErrNotFound); ok {
		return apperr.UnknownTablef("table %q not found", nf.Table)
	}
	return err
}
