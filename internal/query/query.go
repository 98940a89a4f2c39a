// Package query holds stateless lookups over a TopologyGraph. Every
// function is total: unknown ids and nil graphs yield empty results.
package query

import (
	"github.com/vyuha/topoview/internal/graph"
)

// ---------------------------------------------------------------------------
// Lookups
// ---------------------------------------------------------------------------

// GetNodeByID returns the node with the given id, or nil.
func GetNodeByID(g *graph.TopologyGraph, id string) *graph.TopologyNode {
	n, _ := g.Node(id)
	return n
}

// GetChildren returns the children of id in ChildrenIDs order. Dangling
// child ids are skipped.
func GetChildren(g *graph.TopologyGraph, id string) []*graph.TopologyNode {
	parent, ok := g.Node(id)
	if !ok {
		return []*graph.TopologyNode{}
	}
	return resolve(g, parent.ChildrenIDs)
}

// GetAncestors returns the path from the root down to id, both inclusive.
func GetAncestors(g *graph.TopologyGraph, id string) []*graph.TopologyNode {
	n, ok := g.Node(id)
	if !ok {
		return []*graph.TopologyNode{}
	}

	var rev []*graph.TopologyNode
	seen := make(map[string]bool)
	for n != nil && !seen[n.ID] {
		seen[n.ID] = true
		rev = append(rev, n)
		if n.ParentID == "" {
			break
		}
		n, _ = g.Node(n.ParentID)
	}

	path := make([]*graph.TopologyNode, len(rev))
	for i, a := range rev {
		path[len(rev)-1-i] = a
	}
	return path
}

// GetSiblings returns the other children of id's parent. The root has no
// siblings.
func GetSiblings(g *graph.TopologyGraph, id string) []*graph.TopologyNode {
	n, ok := g.Node(id)
	if !ok || n.ParentID == "" {
		return []*graph.TopologyNode{}
	}
	parent, ok := g.Node(n.ParentID)
	if !ok {
		return []*graph.TopologyNode{}
	}

	siblings := make([]*graph.TopologyNode, 0, len(parent.ChildrenIDs))
	for _, s := range resolve(g, parent.ChildrenIDs) {
		if s.ID != id {
			siblings = append(siblings, s)
		}
	}
	return siblings
}

func resolve(g *graph.TopologyGraph, ids []string) []*graph.TopologyNode {
	out := make([]*graph.TopologyNode, 0, len(ids))
	for _, id := range ids {
		if n, ok := g.Node(id); ok {
			out = append(out, n)
		}
	}
	return out
}
