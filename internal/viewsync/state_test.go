package viewsync

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyuha/topoview/internal/graph"
)

func TestIDSetEncodesSorted(t *testing.T) {
	s := NewIDSet("c", "a", "b")
	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `["a","b","c"]`, string(data))

	var back IDSet
	require.NoError(t, json.Unmarshal([]byte(`["x","y","x"]`), &back))
	assert.Equal(t, 2, back.Len())
	assert.True(t, back.Has("x"))
}

func TestViewSyncStateJSON(t *testing.T) {
	state := NewViewSyncState()
	state.SelectedNodeID = "n1"
	state.ExpandedNodeIDs.Add("root")
	state.ViewportBounds = &graph.ViewportBounds{North: 1, South: -1, East: 2, West: -2}
	state.Filters.Vendors = []graph.Vendor{graph.VendorZTE}

	data, err := json.Marshal(state)
	require.NoError(t, err)

	var decoded ViewSyncState
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "n1", decoded.SelectedNodeID)
	assert.True(t, decoded.ExpandedNodeIDs.Has("root"))
	assert.Equal(t, *state.ViewportBounds, *decoded.ViewportBounds)
	assert.Equal(t, state.Filters.Vendors, decoded.Filters.Vendors)
}

func TestFilterPatchFromJSON(t *testing.T) {
	var p FilterPatch
	require.NoError(t, json.Unmarshal([]byte(`{"vendors":[],"has_alarms":true}`), &p))

	base := ViewFilters{
		Vendors:      []graph.Vendor{graph.VendorNokia},
		HealthStates: []graph.HealthState{graph.HealthDown},
	}
	merged := base.Merge(p)
	assert.Empty(t, merged.Vendors)
	assert.Equal(t, []graph.HealthState{graph.HealthDown}, merged.HealthStates)
	assert.True(t, merged.HasAlarms)
	assert.Equal(t, []graph.Vendor{graph.VendorNokia}, base.Vendors, "merge leaves the receiver alone")
}

func TestViewFiltersValidate(t *testing.T) {
	assert.NoError(t, ViewFilters{}.Validate())
	assert.NoError(t, ViewFilters{
		HealthStates: graph.HealthStates,
		Vendors:      []graph.Vendor{graph.VendorUnknown},
		Technologies: []graph.Technology{graph.TechMicrowave, graph.Tech2G},
	}.Validate())
	assert.ErrorIs(t, ViewFilters{Technologies: []graph.Technology{"6G"}}.Validate(), ErrInvalidFilter)
}

func TestLoadOptionsValidate(t *testing.T) {
	assert.NoError(t, DefaultLoadOptions().Validate())
	assert.Equal(t, 16*time.Millisecond, DefaultLoadOptions().BatchDelay)
	assert.ErrorIs(t, LoadOptions{MaxNodesPerBatch: 10, BatchDelay: -time.Second}.Validate(), ErrInvalidOptions)
}
