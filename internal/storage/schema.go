package storage

// ---------------------------------------------------------------------------
// Schema version
// ---------------------------------------------------------------------------

// SchemaVersion is the current database schema version.
const SchemaVersion = 2

// ---------------------------------------------------------------------------
// Migration support
// ---------------------------------------------------------------------------

// Migration describes a single schema migration. Migrations are applied in
// order and recorded in schema_migrations.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations is the ordered list of all schema migrations.
var Migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema: view_snapshots",
		SQL: `
CREATE TABLE IF NOT EXISTS view_snapshots (
    id               TEXT PRIMARY KEY,
    name             TEXT NOT NULL,
    selected_node_id TEXT NOT NULL DEFAULT '',
    zoom_level       REAL NOT NULL DEFAULT 1.0,
    expanded_count   INTEGER NOT NULL DEFAULT 0,
    state            TEXT NOT NULL,
    created_at       DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_created ON view_snapshots(created_at DESC);
`,
	},
	{
		Version:     2,
		Description: "Add graph_seed to view_snapshots and index by name",
		SQL: `
ALTER TABLE view_snapshots ADD COLUMN graph_seed INTEGER NOT NULL DEFAULT 0;
CREATE INDEX IF NOT EXISTS idx_snapshots_name ON view_snapshots(name);
`,
	},
}
