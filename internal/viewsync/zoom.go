package viewsync

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/vyuha/topoview/internal/graph"
)

const (
	// AggregationZoomThreshold: below this level siblings are aggregated.
	AggregationZoomThreshold = 1.5
	// DetailZoomThreshold: above this level children are loaded eagerly.
	DetailZoomThreshold = 2.0
	// AggregationMinGroup is the largest sibling group left as is.
	AggregationMinGroup = 5
	// DetailChildLimit caps the children loaded per node in detail mode.
	DetailChildLimit = 10
	// AggregateIDPrefix prefixes the parent id in aggregate node ids.
	AggregateIDPrefix = "agg_"
)

// HandleZoom records the zoom level and viewport and adapts the view:
// below AggregationZoomThreshold loaded siblings in the viewport are
// aggregated, above DetailZoomThreshold the aggregation cache is cleared
// and up to DetailChildLimit children of every loaded node in the
// viewport are loaded progressively. A nil bounds places no geographic
// constraint. Each call supersedes the detail load of the previous one.
func (s *Service) HandleZoom(ctx context.Context, level float64, bounds *graph.ViewportBounds) error {
	start := time.Now()

	s.mu.Lock()
	s.state.ZoomLevel = level
	if bounds != nil {
		b := *bounds
		s.state.ViewportBounds = &b
	} else {
		s.state.ViewportBounds = nil
	}
	s.generation++
	gen := s.generation

	var detail []*graph.TopologyNode
	mode := "pass-through"
	switch {
	case level < AggregationZoomThreshold:
		mode = "aggregate"
		s.aggregates = s.aggregateLocked(s.state.ViewportBounds)
	case level > DetailZoomThreshold:
		mode = "detail"
		s.aggregates = make(map[string]*graph.TopologyNode)
		detail = s.detailCandidatesLocked(s.state.ViewportBounds)
	}
	aggCount := len(s.aggregates)
	s.mu.Unlock()

	var err error
	if len(detail) > 0 {
		err = s.loadProgressive(ctx, "zoom", detail, s.loadOpts, s.isCurrent(gen))
	}

	elapsed := time.Since(start)
	s.mu.Lock()
	s.perf.zoom = elapsed
	s.mu.Unlock()

	s.recorder.ObserveOperation(OpZoom, elapsed)
	s.publishGauges()
	s.logger.Debug("zoom applied",
		"zoom_level", level,
		"mode", mode,
		"aggregated", aggCount,
		"detail_nodes", len(detail),
		"duration_ms", elapsed.Milliseconds(),
	)
	s.notifier.Notify(Event{Type: EventZoomApplied, ZoomLevel: level, Count: aggCount, At: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("viewsync: zoom detail load: %w", err)
	}
	return nil
}

// aggregateLocked groups loaded nodes inside bounds by parent and builds
// one aggregate node for every group larger than AggregationMinGroup.
// Members keep the parent's child order. The aggregate is a copy of the
// first member standing in for all of them; its ChildrenIDs are the
// member ids.
func (s *Service) aggregateLocked(bounds *graph.ViewportBounds) map[string]*graph.TopologyNode {
	parents := NewIDSet()
	for id := range s.loaded {
		if n, ok := s.graph.Node(id); ok && n.ParentID != "" {
			parents.Add(n.ParentID)
		}
	}

	groups := make(map[string][]*graph.TopologyNode, len(parents))
	for parentID := range parents {
		p, ok := s.graph.Node(parentID)
		if !ok {
			continue
		}
		for _, cid := range p.ChildrenIDs {
			if !s.loaded.Has(cid) {
				continue
			}
			if c, ok := s.graph.Node(cid); ok && inBounds(c, bounds) {
				groups[parentID] = append(groups[parentID], c)
			}
		}
	}

	out := make(map[string]*graph.TopologyNode)
	for parentID, members := range groups {
		if len(members) <= AggregationMinGroup {
			continue
		}
		agg := members[0].Clone()
		agg.ID = AggregateIDPrefix + parentID
		agg.IsAggregated = true
		agg.AggregatedCount = len(members)
		agg.ChildrenIDs = make([]string, len(members))
		for i, m := range members {
			agg.ChildrenIDs[i] = m.ID
		}
		out[agg.ID] = agg
	}
	return out
}

// detailCandidatesLocked returns the not yet loaded children, at most
// DetailChildLimit per parent, of loaded nodes inside bounds.
func (s *Service) detailCandidatesLocked(bounds *graph.ViewportBounds) []*graph.TopologyNode {
	var out []*graph.TopologyNode
	queued := NewIDSet()
	for _, id := range s.loaded.Sorted() {
		n, ok := s.graph.Node(id)
		if !ok || !inBounds(n, bounds) {
			continue
		}
		ids := n.ChildrenIDs
		if len(ids) > DetailChildLimit {
			ids = ids[:DetailChildLimit]
		}
		for _, cid := range ids {
			if s.loaded.Has(cid) || queued.Has(cid) {
				continue
			}
			if c, ok := s.graph.Node(cid); ok {
				queued.Add(cid)
				out = append(out, c)
			}
		}
	}
	return out
}

// GetAggregatedNodes returns the aggregate nodes of the last aggregation
// pass, ordered by id.
func (s *Service) GetAggregatedNodes() []*graph.TopologyNode {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*graph.TopologyNode, 0, len(s.aggregates))
	for _, a := range s.aggregates {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
