// ===========================================================================
// scripts/generate_topology — Dump a generated topology as JSON
//
// Usage:
//   go run ./scripts/generate_topology --seed 42 --out topology.json
//
// With --db-path it also writes a "starter" view snapshot (root and the
// first country expanded) that a server started with the same seed can
// restore.
// ===========================================================================
package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log"
	"os"
	"sort"

	"github.com/vyuha/topoview/internal/config"
	"github.com/vyuha/topoview/internal/graph"
	"github.com/vyuha/topoview/internal/storage"
	"github.com/vyuha/topoview/internal/viewsync"
)

// ---------------------------------------------------------------------------
// Flags
// ---------------------------------------------------------------------------

var (
	configPath = flag.String("config", "", "YAML config whose generator section is used (optional)")
	seed       = flag.Int64("seed", 42, "Random seed for reproducibility")
	outPath    = flag.String("out", "-", "Output file ('-' for stdout)")
	pretty     = flag.Bool("pretty", false, "Indent the JSON output")
	dbPath     = flag.String("db-path", "", "Also save a starter snapshot into this SQLite database")
)

// dump is the file format: nodes sorted by id, so two runs with the same
// seed diff cleanly.
type dump struct {
	Seed   int64                  `json:"seed"`
	RootID string                 `json:"root_id"`
	Stats  graph.GraphStats       `json:"stats"`
	Nodes  []*graph.TopologyNode  `json:"nodes"`
	Links  []graph.DependencyLink `json:"links"`
}

func main() {
	flag.Parse()
	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("  ✗ Config: %v", err)
	}
	cfg.Generator.Seed = *seed

	log.Println("══════════════════════════════════════════")
	log.Println("  TOPOVIEW — Topology Generator")
	log.Println("══════════════════════════════════════════")
	log.Printf("  Seed:     %d", *seed)
	log.Printf("  Expected: %d nodes", cfg.Generator.ExpectedNodeCount())
	log.Println()

	// =====================================================================
	// Step 1: Generate and validate
	// =====================================================================
	log.Println("[1/3] Generating topology…")
	g, err := graph.NewGenerator(cfg.Generator).Generate(ctx)
	if err != nil {
		log.Fatalf("  ✗ Generate failed: %v", err)
	}
	if err := g.Validate(); err != nil {
		log.Fatalf("  ✗ Generated graph is inconsistent: %v", err)
	}
	stats := g.Stats()
	d := dump{Seed: *seed, RootID: g.RootID, Stats: stats, Links: g.Links()}
	log.Printf("  ✓ %d nodes, %d dependency links, %d alarms", stats.TotalNodes, len(d.Links), stats.TotalAlarms)

	// =====================================================================
	// Step 2: Write JSON
	// =====================================================================
	log.Println("[2/3] Writing JSON…")
	for _, n := range g.Nodes {
		d.Nodes = append(d.Nodes, n)
	}
	sort.Slice(d.Nodes, func(i, j int) bool { return d.Nodes[i].ID < d.Nodes[j].ID })

	var w io.Writer = os.Stdout
	if *outPath != "-" {
		f, err := os.Create(*outPath)
		if err != nil {
			log.Fatalf("  ✗ Create %s: %v", *outPath, err)
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	if *pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(d); err != nil {
		log.Fatalf("  ✗ Encode: %v", err)
	}
	log.Printf("  ✓ Wrote %s", *outPath)

	// =====================================================================
	// Step 3: Starter snapshot (optional)
	// =====================================================================
	if *dbPath == "" {
		log.Println("[3/3] Skipping starter snapshot (no --db-path)")
		return
	}
	log.Println("[3/3] Saving starter snapshot…")
	store, err := storage.New(*dbPath)
	if err != nil {
		log.Fatalf("  ✗ Open %s: %v", *dbPath, err)
	}
	defer store.Close()

	svc := viewsync.New(g, viewsync.WithLoadOptions(cfg.View))
	svc.ExpandNode(g.RootID)
	if countries := g.Root().ChildrenIDs; len(countries) > 0 {
		if err := svc.LoadRegion(ctx, countries[0], nil); err != nil {
			log.Fatalf("  ✗ Load region: %v", err)
		}
		svc.ExpandNode(countries[0])
	}
	snap, err := store.SaveSnapshot(ctx, "starter", *seed, svc.GetViewState())
	if err != nil {
		log.Fatalf("  ✗ Save snapshot: %v", err)
	}
	log.Printf("  ✓ Snapshot %s (%d nodes visible)", snap.ID, snap.State.VisibleNodeIDs.Len())
}
