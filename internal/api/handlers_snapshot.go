package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/vyuha/topoview/internal/storage"
)

type snapshotRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

// requireStore answers 503 when the server runs without a snapshot store.
func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE",
			"snapshot storage is not configured")
		return false
	}
	return true
}

func (s *Server) recordSnapshot(op string, err error) {
	if s.metrics != nil {
		s.metrics.RecordSnapshotOperation(op, err)
	}
}

// writeSnapshotError maps storage errors onto HTTP statuses.
func writeSnapshotError(w http.ResponseWriter, op, id string, err error) {
	if errors.Is(err, storage.ErrSnapshotNotFound) {
		writeError(w, http.StatusNotFound, "SNAPSHOT_NOT_FOUND", "snapshot not found: "+id)
		return
	}
	slog.Error("snapshot operation failed", "op", op, "snapshot_id", id, "error", err)
	writeError(w, http.StatusInternalServerError, "STORAGE_ERROR", op+" failed")
}

// ---------------------------------------------------------------------------
// POST /api/view/snapshots
// ---------------------------------------------------------------------------

func (s *Server) handleSnapshotSave(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	var req snapshotRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", "name must not be blank")
		return
	}

	snap, err := s.store.SaveSnapshot(r.Context(), req.Name, s.graphSeed, s.svc.GetViewState())
	s.recordSnapshot("save", err)
	if err != nil {
		writeSnapshotError(w, "save snapshot", "", err)
		return
	}
	slog.Info("snapshot saved", "snapshot_id", snap.ID, "name", snap.Name)
	writeData(w, http.StatusCreated, snap)
}

// ---------------------------------------------------------------------------
// GET /api/view/snapshots?limit=N
// ---------------------------------------------------------------------------

func (s *Server) handleSnapshotList(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	limit := clampInt(intParam(r, "limit", 50), 1, 500)

	list, err := s.store.ListSnapshots(r.Context(), limit)
	s.recordSnapshot("list", err)
	if err != nil {
		writeSnapshotError(w, "list snapshots", "", err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"snapshots": list,
		"count":     len(list),
	})
}

// ---------------------------------------------------------------------------
// GET /api/view/snapshots/{id}
// ---------------------------------------------------------------------------

func (s *Server) handleSnapshotGet(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	id := r.PathValue("id")
	snap, err := s.store.GetSnapshot(r.Context(), id)
	s.recordSnapshot("get", err)
	if err != nil {
		writeSnapshotError(w, "get snapshot", id, err)
		return
	}
	writeData(w, http.StatusOK, snap)
}

// ---------------------------------------------------------------------------
// POST /api/view/snapshots/{id}/restore
// ---------------------------------------------------------------------------

func (s *Server) handleSnapshotRestore(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	id := r.PathValue("id")
	snap, err := s.store.GetSnapshot(r.Context(), id)
	s.recordSnapshot("restore", err)
	if err != nil {
		writeSnapshotError(w, "restore snapshot", id, err)
		return
	}
	if snap.GraphSeed != s.graphSeed {
		// Ids only line up for the first generation in a process with the
		// same fan-outs; the seed does not affect them.
		slog.Warn("restoring snapshot taken on another graph seed",
			"snapshot_id", id, "snapshot_seed", snap.GraphSeed, "graph_seed", s.graphSeed)
	}
	if err := s.svc.RestoreViewState(r.Context(), snap.State); err != nil {
		s.writeViewError(w, r, "restore snapshot", err)
		return
	}
	writeData(w, http.StatusOK, s.svc.GetViewState())
}

// ---------------------------------------------------------------------------
// DELETE /api/view/snapshots/{id}
// ---------------------------------------------------------------------------

func (s *Server) handleSnapshotDelete(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	id := r.PathValue("id")
	err := s.store.DeleteSnapshot(r.Context(), id)
	s.recordSnapshot("delete", err)
	if err != nil {
		writeSnapshotError(w, "delete snapshot", id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
