// ---------------------------------------------------------------------------
// scripts/view_walkthrough/main.go — Scripted tour of the view API
//
// Usage:
//   go run ./scripts/view_walkthrough --server http://localhost:8080
//
// Flags:
//   --server  Base URL of the topoview server (default: http://localhost:8080)
//   --pause   Pause between phases            (default: 2s)
//   --save    Save the final view as a snapshot with this name (default: empty)
// ---------------------------------------------------------------------------
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// ANSI colour helpers
// ---------------------------------------------------------------------------

const (
	reset  = "\033[0m"
	bold   = "\033[1m"
	dim    = "\033[2m"
	red    = "\033[31m"
	green  = "\033[32m"
	yellow = "\033[33m"
	blue   = "\033[34m"
	cyan   = "\033[36m"
	white  = "\033[37m"
)

const totalPhases = 5

func colour(c, s string) string { return c + s + reset }
func header(phase int, msg string) {
	bar := strings.Repeat("━", 60)
	fmt.Println()
	fmt.Println(colour(dim, bar))
	fmt.Printf("  %s  %s\n", colour(bold+cyan, fmt.Sprintf("Phase %d/%d", phase, totalPhases)), colour(bold+white, msg))
	fmt.Println(colour(dim, bar))
}

// ---------------------------------------------------------------------------
// API types (mirrors the backend JSON shapes)
// ---------------------------------------------------------------------------

type alarms struct {
	Critical int `json:"critical"`
	Major    int `json:"major"`
	Minor    int `json:"minor"`
	Warning  int `json:"warning"`
	Total    int `json:"total"`
}

type topoNode struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	Name        string   `json:"name"`
	HealthState string   `json:"health_state"`
	Alarms      alarms   `json:"alarm_summary"`
	ChildrenIDs []string `json:"children_ids"`
}

type statistics struct {
	TotalVisible       int            `json:"total_visible"`
	TotalLoaded        int            `json:"total_loaded"`
	HealthDistribution map[string]int `json:"health_distribution"`
	AlarmCount         int            `json:"alarm_count"`
	AvgUtilization     float64        `json:"avg_utilization"`
}

type envelope[T any] struct {
	Data T `json:"data"`
}

// ---------------------------------------------------------------------------
// HTTP helpers
// ---------------------------------------------------------------------------

func getJSON(url string, target any) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("GET %s returned %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

func postJSON(url string, body, target any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("POST %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("POST %s returned %d", url, resp.StatusCode)
	}
	if target == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

// ---------------------------------------------------------------------------
// Walkthrough
// ---------------------------------------------------------------------------

type walkthrough struct {
	server string
	pause  time.Duration
}

func (w *walkthrough) stats() statistics {
	var env envelope[statistics]
	if err := getJSON(w.server+"/api/view/stats", &env); err != nil {
		fail(err)
	}
	return env.Data
}

func (w *walkthrough) printStats() {
	st := w.stats()
	fmt.Printf("  %s %d   %s %d   %s %d   %s %.1f%%\n",
		colour(dim, "visible"), st.TotalVisible,
		colour(dim, "loaded"), st.TotalLoaded,
		colour(dim, "alarms"), st.AlarmCount,
		colour(dim, "util"), st.AvgUtilization)
	for _, h := range []string{"healthy", "degraded", "down", "offline", "unknown"} {
		if n := st.HealthDistribution[h]; n > 0 {
			fmt.Printf("    %s %d\n", healthColour(h, fmt.Sprintf("%-9s", h)), n)
		}
	}
}

func (w *walkthrough) children(id string) []topoNode {
	var env envelope[struct {
		Children []topoNode `json:"children"`
	}]
	if err := getJSON(w.server+"/api/graph/children?parent_id="+id, &env); err != nil {
		fail(err)
	}
	return env.Data.Children
}

func (w *walkthrough) run(saveAs string) {
	printBanner(w.server)

	// ---- Phase 1 — Cold start ---------------------------------------------
	header(1, "Cold start")
	// The visible walk always starts at the root.
	var visible envelope[struct {
		Nodes []topoNode `json:"nodes"`
	}]
	if err := getJSON(w.server+"/api/view/visible", &visible); err != nil {
		fail(err)
	}
	if len(visible.Data.Nodes) == 0 {
		fail(fmt.Errorf("server has an empty graph"))
	}
	root := visible.Data.Nodes[0]
	fmt.Printf("  %s %s (%d countries)\n", colour(dim, "root:"), colour(bold+white, root.Name), len(root.ChildrenIDs))
	w.printStats()
	time.Sleep(w.pause)

	// ---- Phase 2 — Progressive region load ---------------------------------
	header(2, "Loading the first country progressively")
	countries := w.children(root.ID)
	if len(countries) == 0 {
		fail(fmt.Errorf("root has no children"))
	}
	country := countries[0]
	if err := postJSON(w.server+"/api/view/expand", map[string]string{"node_id": root.ID}, nil); err != nil {
		fail(err)
	}
	start := time.Now()
	if err := postJSON(w.server+"/api/view/region", map[string]any{
		"node_id":             country.ID,
		"max_nodes_per_batch": 10,
		"batch_delay_ms":      16,
	}, nil); err != nil {
		fail(err)
	}
	fmt.Printf("  %s %s in %s\n", colour(green, "loaded"), country.Name, time.Since(start).Round(time.Millisecond))
	if err := postJSON(w.server+"/api/view/expand", map[string]string{"node_id": country.ID}, nil); err != nil {
		fail(err)
	}
	w.printStats()
	time.Sleep(w.pause)

	// ---- Phase 3 — Zoom out and back in -------------------------------------
	header(3, "Zooming out (aggregation) and in (detail)")
	var zoom envelope[struct {
		Aggregates []topoNode `json:"aggregates"`
	}]
	if err := postJSON(w.server+"/api/view/zoom", map[string]any{"zoom_level": 1.0}, &zoom); err != nil {
		fail(err)
	}
	fmt.Printf("  %s zoom 1.0 → %d aggregate groups\n", colour(yellow, "↓"), len(zoom.Data.Aggregates))
	if err := postJSON(w.server+"/api/view/zoom", map[string]any{"zoom_level": 3.0}, &zoom); err != nil {
		fail(err)
	}
	fmt.Printf("  %s zoom 3.0 → %d aggregate groups\n", colour(green, "↑"), len(zoom.Data.Aggregates))
	w.printStats()
	time.Sleep(w.pause)

	// ---- Phase 4 — Select the worst region ---------------------------------
	header(4, "Selecting the region with the most critical alarms")
	regions := w.children(country.ID)
	if len(regions) == 0 {
		fail(fmt.Errorf("country %s has no regions", country.Name))
	}
	worst := regions[0]
	for _, r := range regions[1:] {
		if r.Alarms.Critical > worst.Alarms.Critical {
			worst = r
		}
	}
	var sel envelope[struct {
		Context struct {
			Ancestors []topoNode `json:"ancestors"`
			Impact    []topoNode `json:"impact"`
		} `json:"context"`
	}]
	if err := postJSON(w.server+"/api/view/select", map[string]string{"node_id": worst.ID}, &sel); err != nil {
		fail(err)
	}
	path := make([]string, 0, len(sel.Data.Context.Ancestors))
	for _, a := range sel.Data.Context.Ancestors {
		path = append(path, a.Name)
	}
	fmt.Printf("  %s %s\n", colour(dim, "path:  "), strings.Join(path, " › "))
	fmt.Printf("  %s %s critical alarms\n", colour(dim, "alarms:"), colour(bold+red, fmt.Sprint(worst.Alarms.Critical)))
	fmt.Printf("  %s %d nodes within two hops\n", colour(dim, "impact:"), len(sel.Data.Context.Impact))
	time.Sleep(w.pause)

	// ---- Phase 5 — Filter to trouble ---------------------------------------
	header(5, "Filtering to degraded and down equipment")
	if err := postJSON(w.server+"/api/view/filters", map[string]any{
		"health_states": []string{"degraded", "down"},
	}, nil); err != nil {
		fail(err)
	}
	w.printStats()

	if saveAs != "" {
		var snap envelope[struct {
			ID string `json:"id"`
		}]
		if err := postJSON(w.server+"/api/view/snapshots", map[string]string{"name": saveAs}, &snap); err != nil {
			fail(err)
		}
		fmt.Printf("  %s snapshot %q saved as %s\n", colour(green, "✓"), saveAs, snap.Data.ID)
	}

	// Leave the shared view unfiltered for the next viewer.
	if err := postJSON(w.server+"/api/view/filters", map[string]any{"health_states": []string{}}, nil); err != nil {
		fail(err)
	}
	printFooter()
}

// ---------------------------------------------------------------------------
// Printing helpers
// ---------------------------------------------------------------------------

func healthColour(state, s string) string {
	switch state {
	case "healthy":
		return colour(green, s)
	case "degraded":
		return colour(yellow, s)
	case "down", "offline":
		return colour(red, s)
	}
	return colour(dim, s)
}

func printBanner(server string) {
	bar := strings.Repeat("═", 60)
	fmt.Println()
	fmt.Println(colour(bold+blue, bar))
	fmt.Println(colour(bold+white, "  Topology View Walkthrough"))
	fmt.Printf("  %s %s\n", colour(dim, "Server:"), colour(white, server))
	fmt.Println(colour(dim, "  Open /api/events in another terminal to watch the stream."))
	fmt.Println(colour(bold+blue, bar))
}

func printFooter() {
	bar := strings.Repeat("━", 60)
	fmt.Println()
	fmt.Println(colour(dim, bar))
	fmt.Printf("\n  %s\n\n", colour(bold+green, "✓ Walkthrough complete."))
	fmt.Println(colour(dim, bar))
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "\n  %s %s\n\n", colour(bold+red, "Error:"), err)
	os.Exit(1)
}

// ---------------------------------------------------------------------------
// main
// ---------------------------------------------------------------------------

func main() {
	serverFlag := flag.String("server", "http://localhost:8080", "topoview server base URL")
	pauseFlag := flag.Duration("pause", 2*time.Second, "Pause between phases")
	saveFlag := flag.String("save", "", "Save the final view as a snapshot with this name")
	flag.Parse()

	w := &walkthrough{
		server: strings.TrimRight(*serverFlag, "/"),
		pause:  *pauseFlag,
	}
	w.run(*saveFlag)
}
