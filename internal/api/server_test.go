package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyuha/topoview/internal/graph"
	"github.com/vyuha/topoview/internal/metrics"
	"github.com/vyuha/topoview/internal/storage"
	"github.com/vyuha/topoview/internal/viewsync"
)

// fixtureGraph is root with six sites; site s00 has three nodes.
func fixtureGraph(t *testing.T) *graph.TopologyGraph {
	t.Helper()
	g := graph.NewTopologyGraph()
	root := graph.NewNode("root", graph.NodeTypeGlobal, "GLOBAL")
	root.SetHealth(graph.HealthHealthy)
	require.NoError(t, g.AddNode(root))

	for i := 0; i < 6; i++ {
		site := graph.NewNode(fmt.Sprintf("s%02d", i), graph.NodeTypeSite, fmt.Sprintf("Site %d", i))
		site.ParentID = "root"
		site.SetHealth(graph.HealthHealthy)
		site.Location = &graph.GeoPoint{Lat: 48 + float64(i)/10, Lng: 11}
		require.NoError(t, g.AddNode(site))
	}
	for i := 0; i < 3; i++ {
		n := graph.NewNode(fmt.Sprintf("n%02d", i), graph.NodeTypeNode, fmt.Sprintf("Node %d", i))
		n.ParentID = "s00"
		n.SetHealth(graph.HealthDegraded)
		require.NoError(t, g.AddNode(n))
	}
	return g
}

type testEnv struct {
	svc     *viewsync.Service
	server  *Server
	handler http.Handler
	sse     *EventStream
	reg     *metrics.Registry
}

func newEnv(t *testing.T, withStore bool, cfg Config) *testEnv {
	t.Helper()
	sse := NewEventStream()
	reg := metrics.NewRegistry()
	svc := viewsync.New(fixtureGraph(t),
		viewsync.WithNotifier(sse),
		viewsync.WithRecorder(reg),
		viewsync.WithLoadOptions(viewsync.LoadOptions{MaxNodesPerBatch: 50}),
	)

	var store *storage.Storage
	if withStore {
		var err error
		store, err = storage.New(filepath.Join(t.TempDir(), "api.db"))
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
	}

	srv := NewServer(svc, store, sse, reg, cfg)
	srv.RegisterRoutes()
	return &testEnv{svc: svc, server: srv, handler: srv.Handler(), sse: sse, reg: reg}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// data decodes the {"data": ...} envelope into dst.
func data(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body["code"]
}

// ---------------------------------------------------------------------------
// Graph endpoints
// ---------------------------------------------------------------------------

func TestHealth(t *testing.T) {
	e := newEnv(t, true, Config{})
	rec := e.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(10), body["nodes"])
}

func TestGraphNode(t *testing.T) {
	e := newEnv(t, false, Config{})

	rec := e.do(t, http.MethodGet, "/api/graph/node/s00", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Node   graph.TopologyNode `json:"node"`
		Loaded bool               `json:"loaded"`
	}
	data(t, rec, &got)
	assert.Equal(t, "s00", got.Node.ID)
	assert.Equal(t, "GLOBAL/Site 0", got.Node.GlobalID)
	assert.False(t, got.Loaded)

	rec = e.do(t, http.MethodGet, "/api/graph/node/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NODE_NOT_FOUND", errorCode(t, rec))
}

func TestGraphNodeContext(t *testing.T) {
	e := newEnv(t, false, Config{})

	rec := e.do(t, http.MethodGet, "/api/graph/node/n01/context", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var nc viewsync.NodeContext
	data(t, rec, &nc)
	assert.Equal(t, "n01", nc.Node.ID)
	assert.Len(t, nc.Siblings, 2)
	assert.Len(t, nc.Ancestors, 3)

	rec = e.do(t, http.MethodGet, "/api/graph/node/ghost/context", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGraphChildren(t *testing.T) {
	e := newEnv(t, false, Config{})

	rec := e.do(t, http.MethodGet, "/api/graph/children", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MISSING_PARENT_ID", errorCode(t, rec))

	rec = e.do(t, http.MethodGet, "/api/graph/children?parent_id=ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/graph/children?parent_id=s00", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Count int `json:"count"`
	}
	data(t, rec, &got)
	assert.Equal(t, 3, got.Count)

	rec = e.do(t, http.MethodGet, "/api/graph/children?parent_id=n00", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"children":[]`)
}

func TestGraphAncestors(t *testing.T) {
	e := newEnv(t, false, Config{})

	rec := e.do(t, http.MethodGet, "/api/graph/ancestors/n02", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Ancestors []graph.TopologyNode `json:"ancestors"`
	}
	data(t, rec, &got)
	require.Len(t, got.Ancestors, 3)
	assert.Equal(t, "root", got.Ancestors[0].ID)
	assert.Equal(t, "n02", got.Ancestors[2].ID)

	rec = e.do(t, http.MethodGet, "/api/graph/ancestors/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGraphImpact(t *testing.T) {
	e := newEnv(t, false, Config{})

	rec := e.do(t, http.MethodGet, "/api/graph/impact/root?depth=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Depth int    `json:"depth"`
		Mode  string `json:"mode"`
		Hops  []struct {
			Distance int `json:"distance"`
		} `json:"hops"`
	}
	data(t, rec, &got)
	assert.Equal(t, "containment", got.Mode)
	assert.Len(t, got.Hops, 7, "root plus six sites")
	for _, h := range got.Hops {
		assert.LessOrEqual(t, h.Distance, 1)
	}

	rec = e.do(t, http.MethodGet, "/api/graph/impact/root?depth=99", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data(t, rec, &got)
	assert.Equal(t, maxImpactDepth, got.Depth)
	assert.Len(t, got.Hops, 10)

	rec = e.do(t, http.MethodGet, "/api/graph/impact/root?mode=sideways", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_MODE", errorCode(t, rec))

	rec = e.do(t, http.MethodGet, "/api/graph/impact/root?mode=dependency", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data(t, rec, &got)
	assert.Len(t, got.Hops, 1, "fixture has no dependency links")

	rec = e.do(t, http.MethodGet, "/api/graph/impact/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGraphStats(t *testing.T) {
	e := newEnv(t, false, Config{})
	rec := e.do(t, http.MethodGet, "/api/graph/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats graph.GraphStats
	data(t, rec, &stats)
	assert.Equal(t, 6, stats.NodesByType[graph.NodeTypeSite])
}

// ---------------------------------------------------------------------------
// View endpoints
// ---------------------------------------------------------------------------

func TestExpandCollapseToggle(t *testing.T) {
	e := newEnv(t, false, Config{})

	rec := e.do(t, http.MethodPost, "/api/view/expand", map[string]string{"node_id": "root"})
	require.Equal(t, http.StatusOK, rec.Code)
	var expand struct {
		Expanded bool                 `json:"expanded"`
		Children []graph.TopologyNode `json:"children"`
	}
	data(t, rec, &expand)
	assert.True(t, expand.Expanded)
	assert.Len(t, expand.Children, 6)

	rec = e.do(t, http.MethodGet, "/api/view/visible", nil)
	var visible struct {
		Count int `json:"count"`
	}
	data(t, rec, &visible)
	assert.Equal(t, 7, visible.Count)

	rec = e.do(t, http.MethodPost, "/api/view/collapse", map[string]string{"node_id": "root"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, e.svc.IsExpanded("root"))

	rec = e.do(t, http.MethodPost, "/api/view/toggle", map[string]string{"node_id": "root"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, e.svc.IsExpanded("root"))

	// Unknown ids are a no-op, not an error.
	rec = e.do(t, http.MethodPost, "/api/view/expand", map[string]string{"node_id": "ghost"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBodyValidation(t *testing.T) {
	e := newEnv(t, false, Config{})

	rec := e.do(t, http.MethodPost, "/api/view/expand", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(t, rec))

	rec = e.do(t, http.MethodPost, "/api/view/expand", `{"node_id":"root","extra":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_BODY", errorCode(t, rec))

	rec = e.do(t, http.MethodPost, "/api/view/expand", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "request body is required")
}

func TestLoadRegion(t *testing.T) {
	e := newEnv(t, false, Config{})

	rec := e.do(t, http.MethodPost, "/api/view/region", map[string]any{
		"node_id":             "root",
		"max_nodes_per_batch": 4,
		"batch_delay_ms":      0,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	for _, id := range []string{"s00", "s05", "n00", "n02"} {
		assert.True(t, e.svc.IsLoaded(id), id)
	}

	rec = e.do(t, http.MethodPost, "/api/view/region", map[string]any{
		"node_id":             "root",
		"max_nodes_per_batch": 0,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_OPTIONS", errorCode(t, rec))
}

func TestZoomAggregates(t *testing.T) {
	e := newEnv(t, false, Config{})
	e.svc.ExpandNode("root")

	rec := e.do(t, http.MethodPost, "/api/view/zoom", map[string]any{"zoom_level": 1.0})
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Aggregates []graph.TopologyNode `json:"aggregates"`
	}
	data(t, rec, &got)
	require.Len(t, got.Aggregates, 1)
	assert.Len(t, got.Aggregates[0].ChildrenIDs, 6)

	rec = e.do(t, http.MethodGet, "/api/view/aggregates", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = e.do(t, http.MethodPost, "/api/view/zoom", map[string]any{"zoom_level": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/view/zoom", map[string]any{
		"zoom_level":      1.0,
		"viewport_bounds": map[string]float64{"north": 10, "south": 20, "east": 5, "west": 1},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "north below south")
}

func TestSelectReturnsContext(t *testing.T) {
	e := newEnv(t, false, Config{})

	rec := e.do(t, http.MethodPost, "/api/view/select", map[string]string{"node_id": "n01"})
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Selected string                `json:"selected_node_id"`
		Context  *viewsync.NodeContext `json:"context"`
	}
	data(t, rec, &got)
	assert.Equal(t, "n01", got.Selected)
	require.NotNil(t, got.Context)
	assert.Equal(t, "n01", got.Context.Node.ID)
	assert.True(t, e.svc.IsExpanded("s00"))

	rec = e.do(t, http.MethodPost, "/api/view/select", map[string]string{"node_id": ""})
	require.Equal(t, http.StatusOK, rec.Code)
	data(t, rec, &got)
	assert.Empty(t, got.Selected)
	assert.Nil(t, got.Context)
}

func TestApplyFilters(t *testing.T) {
	e := newEnv(t, false, Config{})
	e.svc.SelectNode("n00")

	rec := e.do(t, http.MethodPost, "/api/view/filters", map[string]any{"health_states": []string{"healthy"}})
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Filters viewsync.ViewFilters `json:"filters"`
		Visible int                  `json:"visible"`
	}
	data(t, rec, &got)
	assert.Equal(t, []graph.HealthState{graph.HealthHealthy}, got.Filters.HealthStates)
	assert.Equal(t, 7, got.Visible, "degraded nodes are pruned")

	rec = e.do(t, http.MethodPost, "/api/view/filters", map[string]any{"health_states": []string{"on_fire"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_FILTER", errorCode(t, rec))
}

func TestStateRoundTrip(t *testing.T) {
	e := newEnv(t, false, Config{})

	rec := e.do(t, http.MethodPut, "/api/view/state", map[string]any{
		"selected_node_id":  "s00",
		"expanded_node_ids": []string{"root", "s00"},
		"zoom_level":        1.75,
		"filters":           map[string]any{},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.do(t, http.MethodGet, "/api/view/state", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var st viewsync.ViewSyncState
	data(t, rec, &st)
	assert.Equal(t, "s00", st.SelectedNodeID)
	assert.Equal(t, []string{"root", "s00"}, st.ExpandedNodeIDs.Sorted())
	assert.Equal(t, 1.75, st.ZoomLevel)
	assert.Equal(t, 10, st.VisibleNodeIDs.Len())
	assert.True(t, e.svc.IsLoaded("n02"))

	rec = e.do(t, http.MethodGet, "/api/view/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats viewsync.Statistics
	data(t, rec, &stats)
	assert.Equal(t, 10, stats.TotalVisible)

	rec = e.do(t, http.MethodGet, "/api/view/performance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var perf viewsync.PerformanceMetrics
	data(t, rec, &perf)
	assert.Equal(t, 10, perf.MemoryUsage.GraphNodes)
}

// ---------------------------------------------------------------------------
// Snapshots
// ---------------------------------------------------------------------------

func TestSnapshotsWithoutStore(t *testing.T) {
	e := newEnv(t, false, Config{})
	rec := e.do(t, http.MethodGet, "/api/view/snapshots", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "STORAGE_UNAVAILABLE", errorCode(t, rec))
}

func TestSnapshotLifecycle(t *testing.T) {
	e := newEnv(t, true, Config{GraphSeed: 7})
	e.svc.SelectNode("n00")

	rec := e.do(t, http.MethodPost, "/api/view/snapshots", map[string]string{"name": "triage"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var snap storage.Snapshot
	data(t, rec, &snap)
	assert.Equal(t, int64(7), snap.GraphSeed)
	assert.Equal(t, "n00", snap.State.SelectedNodeID)

	rec = e.do(t, http.MethodPost, "/api/view/snapshots", map[string]string{"name": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/view/snapshots", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	// Move the view away, then restore.
	e.svc.SelectNode("")
	e.svc.CollapseNode("s00")
	rec = e.do(t, http.MethodPost, "/api/view/snapshots/"+snap.ID+"/restore", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "n00", e.svc.GetViewState().SelectedNodeID)
	assert.True(t, e.svc.IsExpanded("s00"))

	rec = e.do(t, http.MethodGet, "/api/view/snapshots/"+snap.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodDelete, "/api/view/snapshots/"+snap.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/view/snapshots/"+snap.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "SNAPSHOT_NOT_FOUND", errorCode(t, rec))

	rec = e.do(t, http.MethodPost, "/api/view/snapshots/"+snap.ID+"/restore", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// ---------------------------------------------------------------------------
// Middleware, metrics and events
// ---------------------------------------------------------------------------

func TestRateLimit(t *testing.T) {
	e := newEnv(t, false, Config{RateLimit: 0.001, RateBurst: 1})

	rec := e.do(t, http.MethodPost, "/api/view/expand", map[string]string{"node_id": "root"})
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = e.do(t, http.MethodPost, "/api/view/expand", map[string]string{"node_id": "root"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// Reads are never limited.
	rec = e.do(t, http.MethodGet, "/api/view/state", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	e := newEnv(t, false, Config{})
	req := httptest.NewRequest(http.MethodOptions, "/api/view/expand", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	e := newEnv(t, false, Config{})
	e.do(t, http.MethodPost, "/api/view/expand", map[string]string{"node_id": "root"})

	rec := e.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `topoview_http_requests_total{method="POST",path="POST /api/view/expand",status="200"} 1`)
	assert.Contains(t, body, `topoview_view_operations_total{operation="expand"}`)
	assert.Contains(t, body, "topoview_view_visible_nodes 7")
}

func TestEventStreamEncodesAndNumbersEvents(t *testing.T) {
	stream := NewEventStream()
	ch := stream.Subscribe("c1", 0)
	defer stream.Unsubscribe("c1")

	stream.Notify(viewsync.Event{Type: viewsync.EventRegionBatch, NodeID: "root", Batch: 1})
	stream.Notify(viewsync.Event{Type: viewsync.EventRegionLoaded, NodeID: "root"})

	for want := uint64(1); want <= 2; want++ {
		select {
		case f := <-ch:
			assert.Equal(t, want, f.id)
			var e viewsync.Event
			require.NoError(t, json.Unmarshal(f.data, &e))
			assert.Equal(t, string(e.Type), f.name)
			assert.Equal(t, "root", e.NodeID)
		case <-time.After(time.Second):
			t.Fatalf("event %d not forwarded", want)
		}
	}
}

func TestEventStreamReplaysAfterLastEventID(t *testing.T) {
	stream := NewEventStream()
	for i := 0; i < 3; i++ {
		stream.Notify(viewsync.Event{Type: viewsync.EventStateChanged})
	}

	ch := stream.Subscribe("late", 1)
	defer stream.Unsubscribe("late")

	require.Len(t, ch, 2)
	assert.Equal(t, uint64(2), (<-ch).id)
	assert.Equal(t, uint64(3), (<-ch).id)
}

func TestEventStreamAsksForResyncWhenReplayIsGone(t *testing.T) {
	stream := NewEventStream()
	for i := 0; i < replaySize+5; i++ {
		stream.Notify(viewsync.Event{Type: viewsync.EventStateChanged})
	}

	for name, lastID := range map[string]uint64{"too old": 2, "unknown": 1000} {
		t.Run(name, func(t *testing.T) {
			ch := stream.Subscribe(name, lastID)
			defer stream.Unsubscribe(name)

			require.Len(t, ch, 1)
			f := <-ch
			assert.Equal(t, eventResync, f.name)
			assert.Zero(t, f.id)
		})
	}
}

func TestSSEStreamsStateChanges(t *testing.T) {
	e := newEnv(t, false, Config{})
	ts := httptest.NewServer(e.handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	nextEvent := func() string {
		for lines.Scan() {
			if name, ok := strings.CutPrefix(lines.Text(), "event: "); ok {
				return name
			}
		}
		return ""
	}

	require.Equal(t, "connected", nextEvent())
	assert.Equal(t, 1, e.sse.ClientCount())

	e.svc.ExpandNode("root")
	assert.Equal(t, "state_changed", nextEvent())
}

func TestSSEResumesFromLastEventID(t *testing.T) {
	e := newEnv(t, false, Config{})
	e.svc.ExpandNode("root")
	e.svc.ExpandNode("s00")

	ts := httptest.NewServer(e.handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events", nil)
	require.NoError(t, err)
	req.Header.Set("Last-Event-ID", "1")
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var ids, names []string
	lines := bufio.NewScanner(resp.Body)
	for len(names) < 2 && lines.Scan() {
		if id, ok := strings.CutPrefix(lines.Text(), "id: "); ok {
			ids = append(ids, id)
		}
		if name, ok := strings.CutPrefix(lines.Text(), "event: "); ok {
			names = append(names, name)
		}
	}
	assert.Equal(t, []string{"connected", "state_changed"}, names)
	assert.Equal(t, []string{"2"}, ids)
}
