package viewsync

import (
	"runtime"

	"github.com/vyuha/topoview/internal/graph"
	"github.com/vyuha/topoview/internal/query"
)

// NodeContextImpactDepth is the impact depth bundled into a NodeContext.
const NodeContextImpactDepth = 2

// Statistics summarises the visible set.
type Statistics struct {
	TotalVisible       int                       `json:"total_visible"`
	TotalLoaded        int                       `json:"total_loaded"`
	HealthDistribution map[graph.HealthState]int `json:"health_distribution"`
	AlarmCount         int                       `json:"alarm_count"`
	AvgUtilization     float64                   `json:"avg_utilization"`
}

// GetStatistics computes Statistics over the current visible set. The
// average utilisation of an empty set is 0.
func (s *Service) GetStatistics() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Statistics{
		TotalLoaded:        s.loaded.Len(),
		HealthDistribution: make(map[graph.HealthState]int),
	}
	var util float64
	for id := range s.state.VisibleNodeIDs {
		n, ok := s.graph.Node(id)
		if !ok {
			continue
		}
		st.TotalVisible++
		st.HealthDistribution[n.HealthState]++
		st.AlarmCount += n.AlarmSummary.Total
		util += n.KPISummary.Utilization
	}
	if st.TotalVisible > 0 {
		st.AvgUtilization = util / float64(st.TotalVisible)
	}
	return st
}

// NodeContext bundles what a detail panel shows for one node.
type NodeContext struct {
	Node      *graph.TopologyNode   `json:"node"`
	Ancestors []*graph.TopologyNode `json:"ancestors"`
	Children  []*graph.TopologyNode `json:"children"`
	Siblings  []*graph.TopologyNode `json:"siblings"`
	Impact    []*graph.TopologyNode `json:"impact"`
}

// GetNodeContext returns the context of nodeID, or nil if it is unknown.
// Ancestors run from the root to the node itself.
func (s *Service) GetNodeContext(nodeID string) *NodeContext {
	n := query.GetNodeByID(s.graph, nodeID)
	if n == nil {
		return nil
	}
	return &NodeContext{
		Node:      n,
		Ancestors: query.GetAncestors(s.graph, nodeID),
		Children:  query.GetChildren(s.graph, nodeID),
		Siblings:  query.GetSiblings(s.graph, nodeID),
		Impact:    query.GetImpactChain(s.graph, nodeID, NodeContextImpactDepth),
	}
}

// MemoryUsage reports the Go heap and the size of the view caches.
type MemoryUsage struct {
	HeapAllocBytes  uint64 `json:"heap_alloc_bytes"`
	HeapSysBytes    uint64 `json:"heap_sys_bytes"`
	NumGC           uint32 `json:"num_gc"`
	GraphNodes      int    `json:"graph_nodes"`
	LoadedNodes     int    `json:"loaded_nodes"`
	VisibleNodes    int    `json:"visible_nodes"`
	AggregatedNodes int    `json:"aggregated_nodes"`
}

// PerformanceMetrics holds the wall-clock time of the last operation of
// each kind, in milliseconds.
type PerformanceMetrics struct {
	LastRegionLoadTime float64     `json:"last_region_load_time_ms"`
	LastZoomTime       float64     `json:"last_zoom_time_ms"`
	LastExpandTime     float64     `json:"last_expand_time_ms"`
	MemoryUsage        MemoryUsage `json:"memory_usage"`
}

// GetPerformanceMetrics returns diagnostic timings and sizes.
func (s *Service) GetPerformanceMetrics() PerformanceMetrics {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	s.mu.Lock()
	defer s.mu.Unlock()
	return PerformanceMetrics{
		LastRegionLoadTime: float64(s.perf.regionLoad.Microseconds()) / 1000,
		LastZoomTime:       float64(s.perf.zoom.Microseconds()) / 1000,
		LastExpandTime:     float64(s.perf.expand.Microseconds()) / 1000,
		MemoryUsage: MemoryUsage{
			HeapAllocBytes:  ms.HeapAlloc,
			HeapSysBytes:    ms.HeapSys,
			NumGC:           ms.NumGC,
			GraphNodes:      s.graph.NodeCount(),
			LoadedNodes:     s.loaded.Len(),
			VisibleNodes:    s.state.VisibleNodeIDs.Len(),
			AggregatedNodes: len(s.aggregates),
		},
	}
}
