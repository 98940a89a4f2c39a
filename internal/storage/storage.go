// Package storage persists named view-state snapshots in SQLite. The
// topology graph itself is regenerated on every start and never stored.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/vyuha/topoview/internal/viewsync"
)

// ErrSnapshotNotFound is returned for an unknown snapshot id.
var ErrSnapshotNotFound = errors.New("storage: snapshot not found")

// ---------------------------------------------------------------------------
// Domain types
// ---------------------------------------------------------------------------

// Snapshot is a named, saved ViewSyncState.
type Snapshot struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	GraphSeed int64                  `json:"graph_seed"`
	State     viewsync.ViewSyncState `json:"state"`
	CreatedAt time.Time              `json:"created_at"`
}

// SnapshotSummary is a Snapshot without its state, for listings.
type SnapshotSummary struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	GraphSeed      int64     `json:"graph_seed"`
	SelectedNodeID string    `json:"selected_node_id"`
	ZoomLevel      float64   `json:"zoom_level"`
	ExpandedCount  int       `json:"expanded_count"`
	CreatedAt      time.Time `json:"created_at"`
}

// ---------------------------------------------------------------------------
// Storage
// ---------------------------------------------------------------------------

// Storage is a thread-safe wrapper around the snapshot database.
type Storage struct {
	db *sql.DB
	mu sync.RWMutex
}

// ============================= LIFECYCLE ==================================

// New opens (or creates) the SQLite database at dbPath, applies the
// PRAGMAs, runs pending migrations and returns a ready *Storage. Use
// ":memory:" for a throwaway store.
func New(dbPath string) (*Storage, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("storage: open db %q: %w", dbPath, err)
	}

	// Only one writer at a time for SQLite.
	conn.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("storage: set pragma %q: %w", p, err)
		}
	}

	s := &Storage{db: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.PingContext(ctx)
}

// ============================ MIGRATIONS ==================================

func (s *Storage) migrate() error {
	const createMigTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
		version     INTEGER PRIMARY KEY,
		applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
		description TEXT
	)`
	if _, err := s.db.Exec(createMigTable); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	for _, m := range Migrations {
		var exists int
		err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.Version).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check migration v%d: %w", m.Version, err)
		}
		if exists > 0 {
			continue
		}

		if _, err := s.db.Exec(m.SQL); err != nil {
			return fmt.Errorf("apply migration v%d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := s.db.Exec(
			"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			return fmt.Errorf("record migration v%d: %w", m.Version, err)
		}
	}
	return nil
}

// SchemaVersionApplied returns the highest recorded migration.
func (s *Storage) SchemaVersionApplied(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var v sql.NullInt64
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&v); err != nil {
		return 0, fmt.Errorf("storage: schema version: %w", err)
	}
	return int(v.Int64), nil
}

// ======================== SNAPSHOT OPERATIONS =============================

// SaveSnapshot stores state under name and returns the new snapshot. The
// stored visible set is whatever the state carried; it is recomputed on
// restore anyway.
func (s *Storage) SaveSnapshot(ctx context.Context, name string, seed int64, state viewsync.ViewSyncState) (*Snapshot, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("storage: snapshot name must not be empty")
	}

	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("storage: marshal state: %w", err)
	}

	snap := &Snapshot{
		ID:        uuid.New().String(),
		Name:      name,
		GraphSeed: seed,
		State:     state.Clone(),
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	const q = `INSERT INTO view_snapshots
		(id, name, selected_node_id, zoom_level, expanded_count, state, created_at, graph_seed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, q,
		snap.ID, snap.Name, state.SelectedNodeID, state.ZoomLevel,
		state.ExpandedNodeIDs.Len(), string(data), snap.CreatedAt, seed,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: save snapshot %q: %w", name, err)
	}
	return snap, nil
}

// GetSnapshot loads one snapshot. Unknown ids yield ErrSnapshotNotFound.
func (s *Storage) GetSnapshot(ctx context.Context, id string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	const q = `SELECT id, name, graph_seed, state, created_at FROM view_snapshots WHERE id = ?`

	snap := &Snapshot{}
	var stateStr string
	err := s.db.QueryRowContext(ctx, q, id).Scan(&snap.ID, &snap.Name, &snap.GraphSeed, &stateStr, &snap.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get snapshot %q: %w", id, err)
	}
	if err := json.Unmarshal([]byte(stateStr), &snap.State); err != nil {
		return nil, fmt.Errorf("storage: unmarshal snapshot %q state: %w", id, err)
	}
	return snap, nil
}

// ListSnapshots returns summaries, newest first. limit <= 0 means 100.
func (s *Storage) ListSnapshots(ctx context.Context, limit int) ([]SnapshotSummary, error) {
	if limit <= 0 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	const q = `SELECT id, name, graph_seed, selected_node_id, zoom_level, expanded_count, created_at
		FROM view_snapshots ORDER BY created_at DESC, id LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: list snapshots: %w", err)
	}
	defer rows.Close()

	out := []SnapshotSummary{}
	for rows.Next() {
		var sum SnapshotSummary
		if err := rows.Scan(&sum.ID, &sum.Name, &sum.GraphSeed, &sum.SelectedNodeID,
			&sum.ZoomLevel, &sum.ExpandedCount, &sum.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan snapshot: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// DeleteSnapshot removes a snapshot. Unknown ids yield ErrSnapshotNotFound.
func (s *Storage) DeleteSnapshot(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM view_snapshots WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("storage: delete snapshot %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage: delete snapshot %q: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}
	return nil
}
