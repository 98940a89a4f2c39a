package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/vyuha/topoview/internal/api"
	"github.com/vyuha/topoview/internal/config"
	"github.com/vyuha/topoview/internal/graph"
	"github.com/vyuha/topoview/internal/metrics"
	"github.com/vyuha/topoview/internal/storage"
	"github.com/vyuha/topoview/internal/viewsync"
)

// initLogger configures the global slog default with JSON output.
func initLogger(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}
	h := slog.NewJSONHandler(os.Stdout, opts)
	slog.SetDefault(slog.New(h))
}

// loadConfig resolves the configuration with the priority:
//
//	explicitly set flag > TOPOVIEW_* env var > YAML file > default.
func loadConfig(path string, flags *flag.FlagSet, port *int, dbPath, logLevel *string, seed *int64) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	flags.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Server.Port = *port
		case "db-path":
			cfg.Storage.DBPath = *dbPath
		case "log-level":
			cfg.Server.LogLevel = *logLevel
		case "seed":
			cfg.Generator.Seed = *seed
		}
	})
	return cfg, cfg.Validate()
}

func main() {
	// ---- Flags -----------------------------------------------------------
	configFlag := flag.String("config", "", "Path to YAML config file (optional)")
	dbPathFlag := flag.String("db-path", "./topoview.db", "Path to SQLite snapshot database")
	portFlag := flag.Int("port", 8080, "HTTP server port")
	logLevel := flag.String("log-level", "info", "Log level (debug|info|warn|error)")
	seedFlag := flag.Int64("seed", 0, "Generator seed (0 = random)")
	flag.Parse()

	cfg, err := loadConfig(*configFlag, flag.CommandLine, portFlag, dbPathFlag, logLevel, seedFlag)
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	initLogger(cfg.Server.LogLevel)

	// A random seed is pinned here so snapshots can record it.
	if cfg.Generator.Seed == 0 {
		cfg.Generator.Seed = time.Now().UnixNano()
	}

	// ---- Topology graph --------------------------------------------------
	ctx := context.Background()
	start := time.Now()
	var source graph.Source = graph.NewGenerator(cfg.Generator)
	g, err := source.Generate(ctx)
	if err != nil {
		log.Fatalf("failed to generate topology: %v", err)
	}
	if err := g.Validate(); err != nil {
		log.Fatalf("generated topology is inconsistent: %v", err)
	}
	stats := g.Stats()
	slog.Info("topology generated",
		"seed", cfg.Generator.Seed,
		"nodes", stats.TotalNodes,
		"dependency_links", len(g.Links()),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	// ---- Metrics ---------------------------------------------------------
	reg := metrics.NewRegistry()
	byType := make(map[string]int, len(stats.NodesByType))
	for t, n := range stats.NodesByType {
		byType[string(t)] = n
	}
	reg.SetGraphNodes(byType)

	// ---- Storage ---------------------------------------------------------
	store, err := storage.New(cfg.Storage.DBPath)
	if err != nil {
		log.Fatalf("failed to initialise storage: %v", err)
	}

	// ---- View service ----------------------------------------------------
	events := api.NewEventStream()
	svc := viewsync.New(g,
		viewsync.WithLogger(slog.Default().With("component", "viewsync")),
		viewsync.WithNotifier(events),
		viewsync.WithRecorder(reg),
		viewsync.WithLoadOptions(cfg.View),
	)

	// ---- HTTP Server -----------------------------------------------------
	srv := api.NewServer(svc, store, events, reg, api.Config{
		RateLimit: cfg.Server.RateLimit,
		RateBurst: cfg.Server.RateBurst,
		GraphSeed: cfg.Generator.Seed,
	})
	srv.RegisterRoutes()

	banner := fmt.Sprintf(`
═══════════════════════════════
 TOPOVIEW — Topology View Sync
 DB:    %s
 Port:  %d
 Seed:  %d
 Nodes: %d
═══════════════════════════════`, cfg.Storage.DBPath, cfg.Server.Port, cfg.Generator.Seed, stats.TotalNodes)
	fmt.Println(banner)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// ---- Graceful shutdown -----------------------------------------------
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	if err := store.Close(); err != nil {
		slog.Error("storage close error", "error", err)
	}

	slog.Info("topoview shutdown complete")
}
