package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/vyuha/topoview/internal/graph"
	"github.com/vyuha/topoview/internal/viewsync"
)

// ---------------------------------------------------------------------------
// Request bodies
// ---------------------------------------------------------------------------

type nodeRequest struct {
	NodeID string `json:"node_id" validate:"required"`
}

// regionRequest overrides the service load options field by field.
type regionRequest struct {
	NodeID                string `json:"node_id" validate:"required"`
	MaxNodesPerBatch      *int   `json:"max_nodes_per_batch,omitempty"`
	BatchDelayMS          *int   `json:"batch_delay_ms,omitempty"`
	PrioritizeVisibleArea *bool  `json:"prioritize_visible_area,omitempty"`
}

func (req regionRequest) options(base viewsync.LoadOptions) viewsync.LoadOptions {
	o := base
	if req.MaxNodesPerBatch != nil {
		o.MaxNodesPerBatch = *req.MaxNodesPerBatch
	}
	if req.BatchDelayMS != nil {
		o.BatchDelay = time.Duration(*req.BatchDelayMS) * time.Millisecond
	}
	if req.PrioritizeVisibleArea != nil {
		o.PrioritizeVisibleArea = *req.PrioritizeVisibleArea
	}
	return o
}

type zoomRequest struct {
	ZoomLevel      float64               `json:"zoom_level" validate:"gt=0,lte=100"`
	ViewportBounds *graph.ViewportBounds `json:"viewport_bounds,omitempty"`
}

// selectRequest allows an empty node_id, which clears the selection.
type selectRequest struct {
	NodeID string `json:"node_id"`
}

// ---------------------------------------------------------------------------
// POST /api/view/region
// ---------------------------------------------------------------------------

func (s *Server) handleViewRegion(w http.ResponseWriter, r *http.Request) {
	var req regionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	opts := req.options(s.svc.LoadOptions())

	if err := s.svc.LoadRegion(r.Context(), req.NodeID, &opts); err != nil {
		s.writeViewError(w, r, "load region", err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"node_id": req.NodeID,
		"loaded":  s.svc.IsLoaded(req.NodeID),
		"stats":   s.svc.GetStatistics(),
	})
}

// ---------------------------------------------------------------------------
// POST /api/view/expand | collapse | toggle
// ---------------------------------------------------------------------------

func (s *Server) handleViewExpand(w http.ResponseWriter, r *http.Request) {
	var req nodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	children := s.svc.ExpandNode(req.NodeID)
	writeData(w, http.StatusOK, map[string]any{
		"node_id":  req.NodeID,
		"expanded": s.svc.IsExpanded(req.NodeID),
		"children": children,
	})
}

func (s *Server) handleViewCollapse(w http.ResponseWriter, r *http.Request) {
	var req nodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s.svc.CollapseNode(req.NodeID)
	writeData(w, http.StatusOK, map[string]any{
		"node_id":  req.NodeID,
		"expanded": false,
	})
}

func (s *Server) handleViewToggle(w http.ResponseWriter, r *http.Request) {
	var req nodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	expanded, children := s.svc.ToggleNode(req.NodeID)
	writeData(w, http.StatusOK, map[string]any{
		"node_id":  req.NodeID,
		"expanded": expanded,
		"children": children,
	})
}

// ---------------------------------------------------------------------------
// POST /api/view/zoom
// ---------------------------------------------------------------------------

func (s *Server) handleViewZoom(w http.ResponseWriter, r *http.Request) {
	var req zoomRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.svc.HandleZoom(r.Context(), req.ZoomLevel, req.ViewportBounds); err != nil {
		s.writeViewError(w, r, "zoom", err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"zoom_level": req.ZoomLevel,
		"aggregates": s.svc.GetAggregatedNodes(),
	})
}

// ---------------------------------------------------------------------------
// POST /api/view/select
// ---------------------------------------------------------------------------

func (s *Server) handleViewSelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s.svc.SelectNode(req.NodeID)

	var nc *viewsync.NodeContext
	if sel := s.svc.SelectedNode(); sel != nil {
		nc = s.svc.GetNodeContext(sel.ID)
	}
	writeData(w, http.StatusOK, map[string]any{
		"selected_node_id": s.svc.GetViewState().SelectedNodeID,
		"context":          nc,
	})
}

// ---------------------------------------------------------------------------
// POST /api/view/filters
// ---------------------------------------------------------------------------

func (s *Server) handleViewFilters(w http.ResponseWriter, r *http.Request) {
	var patch viewsync.FilterPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	if err := s.svc.ApplyFilters(patch); err != nil {
		s.writeViewError(w, r, "apply filters", err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"filters": s.svc.Filters(),
		"visible": len(s.svc.GetViewState().VisibleNodeIDs),
	})
}

// ---------------------------------------------------------------------------
// GET|PUT /api/view/state
// ---------------------------------------------------------------------------

func (s *Server) handleViewState(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, s.svc.GetViewState())
}

func (s *Server) handleViewRestore(w http.ResponseWriter, r *http.Request) {
	var state viewsync.ViewSyncState
	if !decodeJSON(w, r, &state) {
		return
	}
	if err := s.svc.RestoreViewState(r.Context(), state); err != nil {
		s.writeViewError(w, r, "restore state", err)
		return
	}
	writeData(w, http.StatusOK, s.svc.GetViewState())
}

// ---------------------------------------------------------------------------
// GET /api/view/visible | aggregates | stats | performance
// ---------------------------------------------------------------------------

func (s *Server) handleViewVisible(w http.ResponseWriter, r *http.Request) {
	nodes := s.svc.GetVisibleNodes()
	writeData(w, http.StatusOK, map[string]any{
		"nodes": nodes,
		"count": len(nodes),
	})
}

func (s *Server) handleViewAggregates(w http.ResponseWriter, r *http.Request) {
	aggs := s.svc.GetAggregatedNodes()
	writeData(w, http.StatusOK, map[string]any{
		"aggregates": aggs,
		"count":      len(aggs),
	})
}

func (s *Server) handleViewStats(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, s.svc.GetStatistics())
}

func (s *Server) handleViewPerformance(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, s.svc.GetPerformanceMetrics())
}

// ---------------------------------------------------------------------------
// Error mapping
// ---------------------------------------------------------------------------

// writeViewError maps view service errors onto HTTP statuses.
func (s *Server) writeViewError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, viewsync.ErrInvalidFilter):
		writeError(w, http.StatusBadRequest, "INVALID_FILTER", err.Error())
	case errors.Is(err, viewsync.ErrInvalidOptions):
		writeError(w, http.StatusBadRequest, "INVALID_OPTIONS", err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// The client is usually gone; the status is for the log line.
		writeError(w, http.StatusServiceUnavailable, "CANCELLED", op+" cancelled")
	default:
		slog.Error("view operation failed", "op", op, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "VIEW_FAILED", op+" failed")
	}
}
