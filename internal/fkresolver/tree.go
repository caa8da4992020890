package fkresolver

import "fmt"

// Node is one ForeignKeyReference of spec.md §3: the root node (index 0) is
// the target table itself and carries no ReferringColumn/ReferredColumn;
// every other node represents one FK hop reached from its Parent.
//
// Nodes live in a flat slice and children hold indices into it rather than
// pointers, per spec.md §9's explicit recommendation ("a naive
// pointer-graph encoding invites cycles... use an arena or index-based
// tree"), replacing the pointer-graph-of-maps style of
// pg_lineage/rewrite_pks.go's collectAliasesAndRecurse.
type Node struct {
	Table           string
	ReferringColumn string // empty on the root
	ReferredColumn  string // empty on the root
	Alias           string // "t0", "t1", ... assigned in assignAliasesAndJoins
	ParentAlias     string // the Alias of the node at Parent; empty on the root
	Parent          int    // -1 for the root
	Children        []int
}

// Tree is the arena holding every Node reached while resolving one set of
// dotted identifiers. Nodes[0] is always the root.
type Tree struct {
	Nodes []Node
}

// builder incrementally merges FK chains into a Tree, sharing nodes between
// paths with a common prefix (spec.md §4.4 point 2 "Tree merge").
type builder struct {
	nodes    []Node
	children map[int]map[string]int // parent index -> referringColumn -> child index
}

func newBuilder(target string) *builder {
	return &builder{
		nodes:    []Node{{Table: target, Parent: -1}},
		children: map[int]map[string]int{},
	}
}

// addChain walks hops from the root, creating any node not already present
// for its (parent, referringColumn) pair, and returns the index of the node
// reached after the last hop (the root index, 0, if hops is empty).
func (b *builder) addChain(hops []chainHop) int {
	parent := 0
	for _, h := range hops {
		if idx, ok := b.children[parent][h.referringColumn]; ok {
			parent = idx
			continue
		}
		idx := len(b.nodes)
		b.nodes = append(b.nodes, Node{
			Table:           h.referredTable,
			ReferringColumn: h.referringColumn,
			ReferredColumn:  h.referredColumn,
			Parent:          parent,
		})
		b.nodes[parent].Children = append(b.nodes[parent].Children, idx)
		if b.children[parent] == nil {
			b.children[parent] = map[string]int{}
		}
		b.children[parent][h.referringColumn] = idx
		parent = idx
	}
	return parent
}

// assignAliasesAndJoins walks the merged tree in depth-first pre-order,
// assigning alias "t{n}" to each node in traversal order (spec.md §4.4
// point 3) and collecting the join list in the same order (point 4). Each
// parent's Children slice is already in first-seen order (builder.addChain
// only appends), so this single pass satisfies both requirements at once.
func (b *builder) assignAliasesAndJoins() (joins []string, order []int) {
	counter := 0
	var visit func(idx int)
	visit = func(idx int) {
		b.nodes[idx].Alias = fmt.Sprintf("t%d", counter)
		counter++
		if idx != 0 {
			parent := b.nodes[idx].Parent
			b.nodes[idx].ParentAlias = b.nodes[parent].Alias
			n := b.nodes[idx]
			joins = append(joins, fmt.Sprintf(
				"INNER JOIN %s AS %s ON %s.%s = %s.%s",
				quoteIdent(n.Table), n.Alias,
				b.nodes[parent].Alias, quoteIdent(n.ReferringColumn),
				n.Alias, quoteIdent(n.ReferredColumn),
			))
			order = append(order, idx)
		}
		for _, c := range b.nodes[idx].Children {
			visit(c)
		}
	}
	visit(0)
	return joins, order
}

// quoteIdent double-quotes col. Every identifier reaching this package has
// already passed the Request Adapter's [A-Za-z0-9_]+ boundary check
// (spec.md §3), so this exists only to protect against Postgres reserved
// words, not injection.
func quoteIdent(col string) string {
	return `"` + col + `"`
}
