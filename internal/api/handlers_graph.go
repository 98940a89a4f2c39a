package api

import (
	"net/http"

	"github.com/vyuha/topoview/internal/query"
)

// maxImpactDepth caps ?depth= on the impact endpoint.
const maxImpactDepth = 10

// ---------------------------------------------------------------------------
// GET /api/graph/node/{id}
// ---------------------------------------------------------------------------

func (s *Server) handleGraphNode(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	node := query.GetNodeByID(s.svc.Graph(), id)
	if node == nil {
		writeError(w, http.StatusNotFound, "NODE_NOT_FOUND", "node not found: "+id)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"node":     node,
		"expanded": s.svc.IsExpanded(id),
		"loaded":   s.svc.IsLoaded(id),
	})
}

// ---------------------------------------------------------------------------
// GET /api/graph/node/{id}/context
// ---------------------------------------------------------------------------

func (s *Server) handleGraphNodeContext(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	nc := s.svc.GetNodeContext(id)
	if nc == nil {
		writeError(w, http.StatusNotFound, "NODE_NOT_FOUND", "node not found: "+id)
		return
	}
	writeData(w, http.StatusOK, nc)
}

// ---------------------------------------------------------------------------
// GET /api/graph/children?parent_id=X
// ---------------------------------------------------------------------------

func (s *Server) handleGraphChildren(w http.ResponseWriter, r *http.Request) {
	parentID := r.URL.Query().Get("parent_id")
	if parentID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_PARENT_ID",
			"parent_id query parameter is required")
		return
	}
	if query.GetNodeByID(s.svc.Graph(), parentID) == nil {
		writeError(w, http.StatusNotFound, "NODE_NOT_FOUND", "parent node not found")
		return
	}

	children := query.GetChildren(s.svc.Graph(), parentID)
	writeData(w, http.StatusOK, map[string]any{
		"parent_id": parentID,
		"children":  children,
		"count":     len(children),
	})
}

// ---------------------------------------------------------------------------
// GET /api/graph/ancestors/{id}
// ---------------------------------------------------------------------------

func (s *Server) handleGraphAncestors(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ancestors := query.GetAncestors(s.svc.Graph(), id)
	if len(ancestors) == 0 {
		writeError(w, http.StatusNotFound, "NODE_NOT_FOUND", "node not found: "+id)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"ancestors": ancestors})
}

// ---------------------------------------------------------------------------
// GET /api/graph/impact/{id}?depth=N&mode=containment|dependency
// ---------------------------------------------------------------------------

func (s *Server) handleGraphImpact(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if query.GetNodeByID(s.svc.Graph(), id) == nil {
		writeError(w, http.StatusNotFound, "NODE_NOT_FOUND", "node not found: "+id)
		return
	}

	mode := query.ImpactMode(r.URL.Query().Get("mode"))
	switch mode {
	case "":
		mode = query.ImpactContainment
	case query.ImpactContainment, query.ImpactDependency:
	default:
		writeError(w, http.StatusBadRequest, "INVALID_MODE",
			"mode must be containment or dependency")
		return
	}
	depth := clampInt(intParam(r, "depth", query.DefaultImpactDepth), 1, maxImpactDepth)

	hops := query.GetImpactHops(s.svc.Graph(), id, depth, mode)
	writeData(w, http.StatusOK, map[string]any{
		"node_id": id,
		"mode":    mode,
		"depth":   depth,
		"hops":    hops,
	})
}

// ---------------------------------------------------------------------------
// GET /api/graph/stats
// ---------------------------------------------------------------------------

func (s *Server) handleGraphStats(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, s.svc.Graph().Stats())
}
