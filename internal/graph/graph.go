package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// GlobalIDSeparator joins ancestor names into a node's GlobalID.
const GlobalIDSeparator = "/"

// ---------------------------------------------------------------------------
// GraphStats
// ---------------------------------------------------------------------------

// GraphStats summarises the contents of a TopologyGraph. It is a snapshot
// computed on demand, not kept in sync with every insertion.
type GraphStats struct {
	TotalNodes    int                 `json:"total_nodes"`
	NodesByType   map[NodeType]int    `json:"nodes_by_type"`
	NodesByHealth map[HealthState]int `json:"nodes_by_health"`
	TotalAlarms   int                 `json:"total_alarms"`
	ComputedAt    time.Time           `json:"computed_at"`
}

// ---------------------------------------------------------------------------
// TopologyGraph
// ---------------------------------------------------------------------------

// TopologyGraph is the in-memory inventory tree. It is built once and then
// only read, so lookups take no lock; the lazily computed stats snapshot is
// the only mutable part after construction.
type TopologyGraph struct {
	Nodes  map[string]*TopologyNode   `json:"nodes"`
	RootID string                     `json:"root_id"`
	Edges  map[string]*DependencyLink `json:"edges"` // reserved; links live on nodes

	statsMu sync.Mutex
	stats   *GraphStats
}

// NewTopologyGraph returns an empty graph ready for AddNode.
func NewTopologyGraph() *TopologyGraph {
	return &TopologyGraph{
		Nodes: make(map[string]*TopologyNode),
		Edges: make(map[string]*DependencyLink),
	}
}

// AddNode inserts n and links it to its parent. A node without ParentID
// becomes the root; only one root is allowed. The parent must already be
// present. GlobalID is derived from the parent and overwritten here.
func (g *TopologyGraph) AddNode(n *TopologyNode) error {
	if n == nil || n.ID == "" {
		return errors.New("graph: node must have an id")
	}
	if _, exists := g.Nodes[n.ID]; exists {
		return fmt.Errorf("graph: duplicate node id %q", n.ID)
	}

	if n.ParentID == "" {
		if g.RootID != "" {
			return fmt.Errorf("graph: node %q has no parent but root %q already exists", n.ID, g.RootID)
		}
		n.GlobalID = n.Name
		g.RootID = n.ID
	} else {
		parent, ok := g.Nodes[n.ParentID]
		if !ok {
			return fmt.Errorf("graph: parent %q of node %q not found", n.ParentID, n.ID)
		}
		n.GlobalID = parent.GlobalID + GlobalIDSeparator + n.Name
		parent.ChildrenIDs = append(parent.ChildrenIDs, n.ID)
	}
	if n.ChildrenIDs == nil {
		n.ChildrenIDs = []string{}
	}

	g.Nodes[n.ID] = n
	g.invalidateStats()
	return nil
}

// Node returns the node with the given ID and true, or nil and false.
func (g *TopologyGraph) Node(id string) (*TopologyNode, bool) {
	if g == nil {
		return nil, false
	}
	n, ok := g.Nodes[id]
	return n, ok
}

// Root returns the root node, or nil for an empty graph.
func (g *TopologyGraph) Root() *TopologyNode {
	if g == nil {
		return nil
	}
	return g.Nodes[g.RootID]
}

// NodeCount returns the number of nodes in the graph.
func (g *TopologyGraph) NodeCount() int {
	if g == nil {
		return 0
	}
	return len(g.Nodes)
}

// Stats returns the statistics snapshot, computing it on first use after
// the last insertion.
func (g *TopologyGraph) Stats() GraphStats {
	g.statsMu.Lock()
	defer g.statsMu.Unlock()

	if g.stats == nil {
		s := GraphStats{
			TotalNodes:    len(g.Nodes),
			NodesByType:   make(map[NodeType]int),
			NodesByHealth: make(map[HealthState]int),
			ComputedAt:    time.Now().UTC(),
		}
		for _, n := range g.Nodes {
			s.NodesByType[n.Type]++
			s.NodesByHealth[n.HealthState]++
			s.TotalAlarms += n.AlarmSummary.Total
		}
		g.stats = &s
	}

	cp := *g.stats
	return cp
}

func (g *TopologyGraph) invalidateStats() {
	g.statsMu.Lock()
	g.stats = nil
	g.statsMu.Unlock()
}

// ---------------------------------------------------------------------------
// Invariants
// ---------------------------------------------------------------------------

// Validate checks the structural invariants of the tree: exactly one root,
// parent/child links agree in both directions, GlobalIDs follow the
// ancestor chain, alarm totals add up and cells are leaves. Every
// violation found is reported.
func (g *TopologyGraph) Validate() error {
	var errs []error

	roots := 0
	for id, n := range g.Nodes {
		if n.ParentID == "" {
			roots++
			if id != g.RootID {
				errs = append(errs, fmt.Errorf("node %q has no parent but is not the root", id))
			}
			if n.GlobalID != n.Name {
				errs = append(errs, fmt.Errorf("root %q global id %q, want %q", id, n.GlobalID, n.Name))
			}
		} else {
			parent, ok := g.Nodes[n.ParentID]
			switch {
			case !ok:
				errs = append(errs, fmt.Errorf("node %q references missing parent %q", id, n.ParentID))
			case !containsID(parent.ChildrenIDs, id):
				errs = append(errs, fmt.Errorf("parent %q does not list child %q", n.ParentID, id))
			case n.GlobalID != parent.GlobalID+GlobalIDSeparator+n.Name:
				errs = append(errs, fmt.Errorf("node %q global id %q does not follow its parent", id, n.GlobalID))
			}
		}

		for _, cid := range n.ChildrenIDs {
			child, ok := g.Nodes[cid]
			if !ok {
				errs = append(errs, fmt.Errorf("node %q lists missing child %q", id, cid))
				continue
			}
			if child.ParentID != id {
				errs = append(errs, fmt.Errorf("child %q of %q points at parent %q", cid, id, child.ParentID))
			}
		}

		if !n.AlarmSummary.Consistent() {
			errs = append(errs, fmt.Errorf("node %q alarm total %d does not match severities", id, n.AlarmSummary.Total))
		}
		if n.Type == NodeTypeCell && len(n.ChildrenIDs) > 0 {
			errs = append(errs, fmt.Errorf("cell %q has children", id))
		}
	}

	if len(g.Nodes) > 0 && roots != 1 {
		errs = append(errs, fmt.Errorf("expected exactly one root, found %d", roots))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("graph: %d invariant violation(s): %w", len(errs), errors.Join(errs...))
}

// Links returns every dependency link stored on the nodes, once per
// source node entry, ordered by source, target and type.
func (g *TopologyGraph) Links() []DependencyLink {
	if g == nil {
		return []DependencyLink{}
	}
	out := []DependencyLink{}
	for _, n := range g.Nodes {
		for _, l := range n.Dependencies {
			if l.SourceID == n.ID {
				out = append(out, l)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.SourceID != b.SourceID {
			return a.SourceID < b.SourceID
		}
		if a.TargetID != b.TargetID {
			return a.TargetID < b.TargetID
		}
		return a.Type < b.Type
	})
	return out
}

// PathNames splits a GlobalID back into its ancestor names.
func PathNames(globalID string) []string {
	if globalID == "" {
		return nil
	}
	return strings.Split(globalID, GlobalIDSeparator)
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
