package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "topoview.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 50, cfg.View.MaxNodesPerBatch)
	assert.Equal(t, 16*time.Millisecond, cfg.View.BatchDelay)
	assert.Equal(t, 2, cfg.Generator.ClustersPerRegion)
}

func TestLoadMissingOrEmptyFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg, err = Load(writeFile(t, "   \n"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
server:
  port: 9090
  log_level: debug
generator:
  seed: 7
  sites_per_cluster: 3
view:
  max_nodes_per_batch: 25
  batch_delay: 5ms
storage:
  db_path: /tmp/snapshots.db
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, 40, cfg.Server.RateBurst, "unset fields keep defaults")
	assert.Equal(t, int64(7), cfg.Generator.Seed)
	assert.Equal(t, 3, cfg.Generator.SitesPerCluster)
	assert.Equal(t, 2, cfg.Generator.NodesPerSite)
	assert.Equal(t, 25, cfg.View.MaxNodesPerBatch)
	assert.Equal(t, 5*time.Millisecond, cfg.View.BatchDelay)
	assert.Equal(t, "/tmp/snapshots.db", cfg.Storage.DBPath)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	_, err := Load(writeFile(t, "generator:\n  cells_per_port: 0\n"))
	var verr ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Contains(t, verr.Field, "CellsPerPort")

	_, err = Load(writeFile(t, "server:\n  log_level: loud\n"))
	require.Error(t, err)

	_, err = Load(writeFile(t, "server: [not, a, map]\n"))
	require.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"TOPOVIEW_PORT":        "7000",
		"TOPOVIEW_DB_PATH":     "/data/tv.db",
		"TOPOVIEW_BATCH_DELAY": "0s",
		"TOPOVIEW_SEED":        "42",
		"OTHER_PORT":           "1",
	}))
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "/data/tv.db", cfg.Storage.DBPath)
	assert.Zero(t, cfg.View.BatchDelay)
	assert.Equal(t, int64(42), cfg.Generator.Seed)
}

func TestApplyEnvErrors(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{"TOPOVIEW_PORT": "eighty"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TOPOVIEW_PORT")

	cfg = Default()
	err = cfg.ApplyEnv(envMap(map[string]string{"TOPOVIEW_PORT": "70000"}))
	var verr ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Field, "Port")
}
