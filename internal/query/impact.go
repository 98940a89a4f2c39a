package query

import (
	"sort"

	"github.com/vyuha/topoview/internal/graph"
)

// DefaultImpactDepth is the hop limit used when a caller passes depth <= 0.
const DefaultImpactDepth = 3

// ImpactMode selects which relationship an impact traversal follows.
type ImpactMode string

const (
	// ImpactContainment follows parent to child links only.
	ImpactContainment ImpactMode = "containment"
	// ImpactDependency follows DependencyLinks that propagate failure.
	ImpactDependency ImpactMode = "dependency"
)

// ImpactHop is a node reached by an impact traversal and its BFS distance
// from the start node.
type ImpactHop struct {
	Node     *graph.TopologyNode `json:"node"`
	Distance int                 `json:"distance"`
}

// GetImpactChain returns the nodes reachable downward from id through
// containment within depth hops, in BFS order, starting with id itself.
func GetImpactChain(g *graph.TopologyGraph, id string, depth int) []*graph.TopologyNode {
	return nodesOf(GetImpactHops(g, id, depth, ImpactContainment))
}

// GetDependencyImpact is GetImpactChain over dependency links instead of
// containment. Upstream links are not followed forward; bidirectional
// links are followed both ways.
func GetDependencyImpact(g *graph.TopologyGraph, id string, depth int) []*graph.TopologyNode {
	return nodesOf(GetImpactHops(g, id, depth, ImpactDependency))
}

// GetImpactHops runs the impact BFS for the given mode and keeps the hop
// distance of every node. An unknown mode is treated as containment.
func GetImpactHops(g *graph.TopologyGraph, id string, depth int, mode ImpactMode) []ImpactHop {
	start, ok := g.Node(id)
	if !ok {
		return []ImpactHop{}
	}
	if depth <= 0 {
		depth = DefaultImpactDepth
	}

	next := containmentNeighbours
	if mode == ImpactDependency {
		next = dependencyNeighbours(g)
	}

	type entry struct {
		id    string
		depth int
	}
	visited := map[string]bool{start.ID: true}
	queue := []entry{{start.ID, 0}}
	result := []ImpactHop{{Node: start, Distance: 0}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if cur.depth >= depth {
			continue
		}
		n, _ := g.Node(cur.id)
		for _, nid := range next(n) {
			if visited[nid] {
				continue
			}
			visited[nid] = true
			if nn, ok := g.Node(nid); ok {
				result = append(result, ImpactHop{Node: nn, Distance: cur.depth + 1})
				queue = append(queue, entry{nid, cur.depth + 1})
			}
		}
	}
	return result
}

func containmentNeighbours(n *graph.TopologyNode) []string {
	return n.ChildrenIDs
}

// dependencyNeighbours indexes bidirectional links by target once, so a
// node reaches the targets of its own links and the sources of
// bidirectional links pointing at it.
func dependencyNeighbours(g *graph.TopologyGraph) func(*graph.TopologyNode) []string {
	reverse := make(map[string][]string)
	for _, other := range g.Nodes {
		for _, l := range other.Dependencies {
			if l.Bidirectional && l.SourceID == other.ID {
				reverse[l.TargetID] = append(reverse[l.TargetID], l.SourceID)
			}
		}
	}
	for id := range reverse {
		sort.Strings(reverse[id])
	}

	return func(n *graph.TopologyNode) []string {
		var out []string
		for _, l := range n.Dependencies {
			if to, ok := l.Propagates(n.ID); ok {
				out = append(out, to)
			}
		}
		return append(out, reverse[n.ID]...)
	}
}

func nodesOf(hops []ImpactHop) []*graph.TopologyNode {
	out := make([]*graph.TopologyNode, len(hops))
	for i, h := range hops {
		out[i] = h.Node
	}
	return out
}
