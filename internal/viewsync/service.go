// Package viewsync keeps the view state of a large topology graph in step
// across renderers: which nodes are loaded, expanded, visible, selected and
// aggregated at the current zoom level.
package viewsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vyuha/topoview/internal/graph"
	"github.com/vyuha/topoview/internal/query"
)

// Operation names reported to the Recorder.
const (
	OpLoadRegion   = "load_region"
	OpExpand       = "expand"
	OpCollapse     = "collapse"
	OpZoom         = "zoom"
	OpSelect       = "select"
	OpApplyFilters = "apply_filters"
	OpRestore      = "restore"
)

// Service owns one ViewSyncState over an immutable TopologyGraph. All
// state changes go through mu; progressive loads release it between
// batches.
type Service struct {
	graph    *graph.TopologyGraph
	logger   *slog.Logger
	notifier Notifier
	recorder Recorder
	loadOpts LoadOptions

	mu         sync.Mutex
	state      ViewSyncState
	loaded     IDSet
	pending    map[string]*pendingLoad
	aggregates map[string]*graph.TopologyNode
	generation uint64
	perf       perfTimes
}

// pendingLoad is an in-flight LoadRegion other callers can join. err is
// written before done is closed.
type pendingLoad struct {
	done chan struct{}
	err  error
}

type perfTimes struct {
	regionLoad time.Duration
	zoom       time.Duration
	expand     time.Duration
}

// New creates a Service over g. The root is loaded from the start; the
// visible set stays empty until the first state change.
func New(g *graph.TopologyGraph, opts ...Option) *Service {
	if g == nil {
		g = graph.NewTopologyGraph()
	}
	s := &Service{
		graph:      g,
		logger:     slog.Default(),
		notifier:   nopNotifier{},
		recorder:   nopRecorder{},
		loadOpts:   DefaultLoadOptions(),
		state:      NewViewSyncState(),
		loaded:     NewIDSet(),
		pending:    make(map[string]*pendingLoad),
		aggregates: make(map[string]*graph.TopologyNode),
	}
	for _, o := range opts {
		o(s)
	}
	if g.RootID != "" {
		s.loaded.Add(g.RootID)
	}
	return s
}

// Graph returns the graph the service views.
func (s *Service) Graph() *graph.TopologyGraph { return s.graph }

// LoadOptions returns the options used when a caller passes none.
func (s *Service) LoadOptions() LoadOptions { return s.loadOpts }

// ---------------------------------------------------------------------------
// Progressive loading
// ---------------------------------------------------------------------------

// LoadRegion loads the children and then the grandchildren of nodeID in
// batches, pacing batches by opts.BatchDelay. A nil opts uses the service
// defaults. Unknown ids are a no-op. If the same node is already being
// loaded, LoadRegion waits for that load and returns its outcome; when the
// joined load was cancelled by its own caller, the load starts over under
// ctx. Cancelling ctx stops between batches and returns ctx.Err(); batches
// already applied stay loaded.
func (s *Service) LoadRegion(ctx context.Context, nodeID string, opts *LoadOptions) error {
	o := s.loadOpts
	if opts != nil {
		if err := opts.Validate(); err != nil {
			return err
		}
		o = *opts
	}
	if _, ok := s.graph.Node(nodeID); !ok {
		return nil
	}

	for {
		s.mu.Lock()
		p, ok := s.pending[nodeID]
		if !ok {
			p = &pendingLoad{done: make(chan struct{})}
			s.pending[nodeID] = p
			s.mu.Unlock()
			return s.runRegionLoad(ctx, nodeID, o, p)
		}
		s.mu.Unlock()

		select {
		case <-p.done:
		case <-ctx.Done():
			return ctx.Err()
		}
		if !isContextErr(p.err) {
			return p.err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		s.logger.Debug("joined region load was cancelled, retrying", "node_id", nodeID)
	}
}

// runRegionLoad performs the load registered as p and publishes its
// outcome to any joined callers.
func (s *Service) runRegionLoad(ctx context.Context, nodeID string, o LoadOptions, p *pendingLoad) error {
	start := time.Now()
	err := s.loadRegion(ctx, nodeID, o, nil)
	elapsed := time.Since(start)

	s.mu.Lock()
	delete(s.pending, nodeID)
	s.perf.regionLoad = elapsed
	p.err = err
	s.mu.Unlock()
	close(p.done)

	s.recorder.ObserveOperation(OpLoadRegion, elapsed)
	s.publishGauges()
	if err != nil {
		s.logger.Warn("region load interrupted", "node_id", nodeID, "error", err)
		return err
	}
	s.logger.Debug("region loaded", "node_id", nodeID, "duration_ms", elapsed.Milliseconds())
	s.notifier.Notify(Event{Type: EventRegionLoaded, NodeID: nodeID, At: time.Now().UTC()})
	return nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// loadRegion runs both phases for nodeID. current, when non-nil, is
// checked before every batch; a stale load stops quietly.
func (s *Service) loadRegion(ctx context.Context, nodeID string, o LoadOptions, current func() bool) error {
	children := query.GetChildren(s.graph, nodeID)
	var grandchildren []*graph.TopologyNode
	for _, c := range children {
		grandchildren = append(grandchildren, query.GetChildren(s.graph, c.ID)...)
	}

	ordered := append(s.prioritize(children, o), s.prioritize(grandchildren, o)...)
	return s.loadProgressive(ctx, nodeID, ordered, o, current)
}

// loadProgressive marks nodes loaded in batches of o.MaxNodesPerBatch.
// The first batch is critical and goes out at once; later batches wait on
// a limiter that hands out one token per o.BatchDelay.
func (s *Service) loadProgressive(ctx context.Context, label string, nodes []*graph.TopologyNode, o LoadOptions, current func() bool) error {
	if len(nodes) == 0 {
		return ctx.Err()
	}
	size := o.MaxNodesPerBatch
	if size < 1 {
		size = DefaultLoadOptions().MaxNodesPerBatch
	}

	var limiter *rate.Limiter
	if o.BatchDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(o.BatchDelay), 1)
		limiter.Allow()
	}

	batch := 0
	for i := 0; i < len(nodes); i += size {
		batch++
		if err := ctx.Err(); err != nil {
			return err
		}
		if batch > 1 && limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				return fmt.Errorf("viewsync: pacing batch %d of %s: %w", batch, label, err)
			}
		}
		if current != nil && !current() {
			s.logger.Debug("dropping stale load", "node_id", label, "batch", batch)
			return nil
		}

		end := min(i+size, len(nodes))
		s.mu.Lock()
		for _, n := range nodes[i:end] {
			s.loaded.Add(n.ID)
		}
		s.mu.Unlock()

		priority := PriorityNormal
		if batch == 1 {
			priority = PriorityCritical
		}
		s.notifier.Notify(Event{
			Type:     EventRegionBatch,
			NodeID:   label,
			Batch:    batch,
			Priority: priority,
			Count:    end - i,
			At:       time.Now().UTC(),
		})
	}
	return nil
}

// prioritize moves nodes inside the current viewport to the front,
// keeping relative order otherwise.
func (s *Service) prioritize(nodes []*graph.TopologyNode, o LoadOptions) []*graph.TopologyNode {
	s.mu.Lock()
	bounds := s.state.ViewportBounds
	s.mu.Unlock()
	if !o.PrioritizeVisibleArea || bounds == nil {
		return nodes
	}

	inside := make([]*graph.TopologyNode, 0, len(nodes))
	var outside []*graph.TopologyNode
	for _, n := range nodes {
		if inBounds(n, bounds) {
			inside = append(inside, n)
		} else {
			outside = append(outside, n)
		}
	}
	return append(inside, outside...)
}

// inBounds is true for every node when bounds is nil, and otherwise only
// for located nodes inside bounds.
func inBounds(n *graph.TopologyNode, bounds *graph.ViewportBounds) bool {
	if bounds == nil {
		return true
	}
	return n.Location != nil && bounds.Contains(*n.Location)
}

func (s *Service) isCurrent(gen uint64) func() bool {
	return func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.generation == gen
	}
}

// ---------------------------------------------------------------------------
// Expansion and selection
// ---------------------------------------------------------------------------

// ExpandNode marks nodeID expanded and its children loaded, and returns
// the children. Expanding an expanded node changes nothing. Unknown ids
// return an empty list.
func (s *Service) ExpandNode(nodeID string) []*graph.TopologyNode {
	start := time.Now()
	if _, ok := s.graph.Node(nodeID); !ok {
		return []*graph.TopologyNode{}
	}
	children := query.GetChildren(s.graph, nodeID)

	s.mu.Lock()
	changed := s.expandLocked(nodeID, children)
	if changed {
		s.refreshVisibleLocked()
	}
	elapsed := time.Since(start)
	s.perf.expand = elapsed
	s.mu.Unlock()

	s.recorder.ObserveOperation(OpExpand, elapsed)
	if changed {
		s.stateChanged(nodeID)
	}
	return children
}

func (s *Service) expandLocked(nodeID string, children []*graph.TopologyNode) bool {
	if s.state.ExpandedNodeIDs.Has(nodeID) {
		return false
	}
	s.state.ExpandedNodeIDs.Add(nodeID)
	s.loaded.Add(nodeID)
	for _, c := range children {
		s.loaded.Add(c.ID)
	}
	return true
}

// CollapseNode removes nodeID from the expanded set. Loaded nodes stay
// loaded.
func (s *Service) CollapseNode(nodeID string) {
	start := time.Now()
	s.mu.Lock()
	changed := s.state.ExpandedNodeIDs.Has(nodeID)
	if changed {
		s.state.ExpandedNodeIDs.Remove(nodeID)
		s.refreshVisibleLocked()
	}
	s.mu.Unlock()

	s.recorder.ObserveOperation(OpCollapse, time.Since(start))
	if changed {
		s.stateChanged(nodeID)
	}
}

// ToggleNode collapses an expanded node and expands a collapsed one. It
// reports whether the node is expanded afterwards.
func (s *Service) ToggleNode(nodeID string) (bool, []*graph.TopologyNode) {
	if s.IsExpanded(nodeID) {
		s.CollapseNode(nodeID)
		return false, []*graph.TopologyNode{}
	}
	children := s.ExpandNode(nodeID)
	return s.IsExpanded(nodeID), children
}

// IsExpanded reports whether nodeID is in the expanded set.
func (s *Service) IsExpanded(nodeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.ExpandedNodeIDs.Has(nodeID)
}

// IsLoaded reports whether nodeID has been loaded.
func (s *Service) IsLoaded(nodeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded.Has(nodeID)
}

// SelectNode selects nodeID and expands every ancestor above it so the
// path to it is visible. An empty id clears the selection; unknown ids are
// ignored.
func (s *Service) SelectNode(nodeID string) {
	start := time.Now()
	var path []*graph.TopologyNode
	if nodeID != "" {
		if _, ok := s.graph.Node(nodeID); !ok {
			return
		}
		path = query.GetAncestors(s.graph, nodeID)
		path = path[:len(path)-1]
	}

	s.mu.Lock()
	s.state.SelectedNodeID = nodeID
	for _, a := range path {
		s.expandLocked(a.ID, query.GetChildren(s.graph, a.ID))
	}
	if nodeID != "" {
		s.loaded.Add(nodeID)
	}
	s.refreshVisibleLocked()
	s.mu.Unlock()

	s.recorder.ObserveOperation(OpSelect, time.Since(start))
	s.stateChanged(nodeID)
}

// SelectedNode returns the selected node, or nil.
func (s *Service) SelectedNode() *graph.TopologyNode {
	s.mu.Lock()
	id := s.state.SelectedNodeID
	s.mu.Unlock()
	return query.GetNodeByID(s.graph, id)
}

// ---------------------------------------------------------------------------
// Filters and visibility
// ---------------------------------------------------------------------------

// ApplyFilters merges patch into the active filters and recomputes the
// visible set. The merged filters are validated first; on error nothing
// changes.
func (s *Service) ApplyFilters(patch FilterPatch) error {
	start := time.Now()
	s.mu.Lock()
	merged := s.state.Filters.Merge(patch)
	if err := merged.Validate(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.state.Filters = merged
	s.refreshVisibleLocked()
	s.mu.Unlock()

	s.recorder.ObserveOperation(OpApplyFilters, time.Since(start))
	s.stateChanged("")
	return nil
}

// Filters returns a copy of the active filters.
func (s *Service) Filters() ViewFilters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Filters.clone()
}

// GetVisibleNodes walks the graph breadth first from the root. A node is
// included when it passes the filters, and its children are visited only
// when it is also expanded.
func (s *Service) GetVisibleNodes() []*graph.TopologyNode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visibleLocked()
}

func (s *Service) visibleLocked() []*graph.TopologyNode {
	root := s.graph.Root()
	if root == nil {
		return []*graph.TopologyNode{}
	}

	var out []*graph.TopologyNode
	queue := []*graph.TopologyNode{root}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]

		if !MatchesFilters(n, s.state.Filters) {
			continue
		}
		out = append(out, n)
		if s.state.ExpandedNodeIDs.Has(n.ID) {
			queue = append(queue, query.GetChildren(s.graph, n.ID)...)
		}
	}
	return out
}

func (s *Service) refreshVisibleLocked() {
	visible := s.visibleLocked()
	ids := make(IDSet, len(visible))
	for _, n := range visible {
		ids.Add(n.ID)
	}
	s.state.VisibleNodeIDs = ids
}

// ---------------------------------------------------------------------------
// Snapshot and restore
// ---------------------------------------------------------------------------

// GetViewState returns a copy of the current state.
func (s *Service) GetViewState() ViewSyncState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// RestoreViewState replaces the state and reloads every expanded node
// through the progressive path, in id order. A later zoom or restore
// supersedes an unfinished one.
func (s *Service) RestoreViewState(ctx context.Context, state ViewSyncState) error {
	start := time.Now()
	if err := state.Filters.Validate(); err != nil {
		return err
	}
	next := state.Clone()
	next.normalize()

	s.mu.Lock()
	s.state = next
	s.generation++
	gen := s.generation
	s.aggregates = make(map[string]*graph.TopologyNode)
	expanded := s.state.ExpandedNodeIDs.Sorted()
	for _, id := range expanded {
		if _, ok := s.graph.Node(id); ok {
			s.loaded.Add(id)
		}
	}
	s.mu.Unlock()

	current := s.isCurrent(gen)
	var err error
	for _, id := range expanded {
		if _, ok := s.graph.Node(id); !ok {
			continue
		}
		if err = s.loadRegion(ctx, id, s.loadOpts, current); err != nil {
			break
		}
	}

	s.mu.Lock()
	s.refreshVisibleLocked()
	s.mu.Unlock()

	s.recorder.ObserveOperation(OpRestore, time.Since(start))
	s.publishGauges()
	s.stateChanged("")
	if err != nil {
		return fmt.Errorf("viewsync: restore: %w", err)
	}
	s.logger.Info("view state restored", "expanded", len(expanded), "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// ---------------------------------------------------------------------------
// Impact
// ---------------------------------------------------------------------------

// GetImpactChain returns the containment impact of nodeID within depth
// hops (depth <= 0 means the default of 3).
func (s *Service) GetImpactChain(nodeID string, depth int) []*graph.TopologyNode {
	return query.GetImpactChain(s.graph, nodeID, depth)
}

// GetDependencyImpact returns the dependency-link impact of nodeID.
func (s *Service) GetDependencyImpact(nodeID string, depth int) []*graph.TopologyNode {
	return query.GetDependencyImpact(s.graph, nodeID, depth)
}

// ---------------------------------------------------------------------------
// Notification helpers
// ---------------------------------------------------------------------------

func (s *Service) stateChanged(nodeID string) {
	s.publishGauges()
	s.notifier.Notify(Event{Type: EventStateChanged, NodeID: nodeID, At: time.Now().UTC()})
}

func (s *Service) publishGauges() {
	s.mu.Lock()
	loaded, visible, agg := s.loaded.Len(), s.state.VisibleNodeIDs.Len(), len(s.aggregates)
	s.mu.Unlock()
	s.recorder.SetViewGauges(loaded, visible, agg)
}
