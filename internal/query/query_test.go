package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyuha/topoview/internal/graph"
)

// chain builds root -> a -> b -> c -> d plus a second child a2 of root.
func chain(t *testing.T) *graph.TopologyGraph {
	t.Helper()
	g := graph.NewTopologyGraph()
	add := func(id, parent string, typ graph.NodeType) *graph.TopologyNode {
		n := graph.NewNode(id, typ, id)
		n.ParentID = parent
		require.NoError(t, g.AddNode(n))
		return n
	}
	add("root", "", graph.NodeTypeGlobal)
	add("a", "root", graph.NodeTypeCountry)
	add("a2", "root", graph.NodeTypeCountry)
	add("b", "a", graph.NodeTypeRegion)
	add("c", "b", graph.NodeTypeCluster)
	add("d", "c", graph.NodeTypeSite)
	return g
}

func ids(nodes []*graph.TopologyNode) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

func TestGetNodeByID(t *testing.T) {
	g := chain(t)
	assert.Equal(t, "b", GetNodeByID(g, "b").ID)
	assert.Nil(t, GetNodeByID(g, "nope"))
	assert.Nil(t, GetNodeByID(nil, "b"))
}

func TestGetChildren(t *testing.T) {
	g := chain(t)
	assert.Equal(t, []string{"a", "a2"}, ids(GetChildren(g, "root")))
	assert.Empty(t, GetChildren(g, "d"))
	assert.NotNil(t, GetChildren(g, "nope"))
	assert.Empty(t, GetChildren(g, "nope"))
}

func TestGetAncestors(t *testing.T) {
	g := chain(t)
	assert.Equal(t, []string{"root", "a", "b", "c", "d"}, ids(GetAncestors(g, "d")))
	assert.Equal(t, []string{"root"}, ids(GetAncestors(g, "root")))
	assert.Empty(t, GetAncestors(g, "nope"))
}

func TestGetSiblings(t *testing.T) {
	g := chain(t)
	assert.Equal(t, []string{"a2"}, ids(GetSiblings(g, "a")))
	assert.Empty(t, GetSiblings(g, "root"))
	assert.Empty(t, GetSiblings(g, "b"))
}

func TestImpactChainDepthBound(t *testing.T) {
	g := chain(t)

	hops := GetImpactHops(g, "a", 2, ImpactContainment)
	require.NotEmpty(t, hops)
	assert.Equal(t, "a", hops[0].Node.ID)
	assert.Equal(t, 0, hops[0].Distance)
	for _, h := range hops {
		assert.LessOrEqual(t, h.Distance, 2)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids(GetImpactChain(g, "a", 2)))
}

func TestImpactChainDefaultDepth(t *testing.T) {
	g := chain(t)
	// root -> a -> b -> c is three hops; d is four.
	got := ids(GetImpactChain(g, "root", 0))
	assert.Contains(t, got, "c")
	assert.NotContains(t, got, "d")
	assert.Empty(t, GetImpactChain(g, "nope", 3))
}

func TestDependencyImpact(t *testing.T) {
	g := chain(t)
	a, _ := g.Node("a")
	a2, _ := g.Node("a2")
	d, _ := g.Node("d")

	a.Dependencies = []graph.DependencyLink{
		{SourceID: "a", TargetID: "d", Type: graph.DependencyDownstream, Impact: graph.ImpactMajor},
	}
	d.Dependencies = []graph.DependencyLink{
		{SourceID: "d", TargetID: "a", Type: graph.DependencyUpstream, Impact: graph.ImpactMajor},
	}
	a2.Dependencies = []graph.DependencyLink{
		{SourceID: "a2", TargetID: "a", Type: graph.DependencyBackup, Impact: graph.ImpactMinor, Bidirectional: true},
	}

	// a fails: reaches d downstream and a2 through the bidirectional backup.
	assert.ElementsMatch(t, []string{"a", "d", "a2"}, ids(GetDependencyImpact(g, "a", 1)))

	// d only has an upstream link, which does not propagate.
	assert.Equal(t, []string{"d"}, ids(GetDependencyImpact(g, "d", 3)))

	hops := GetImpactHops(g, "a2", 2, ImpactDependency)
	assert.Equal(t, []string{"a2", "a", "d"}, ids(nodesOf(hops)))
	assert.Equal(t, 2, hops[2].Distance)
}
