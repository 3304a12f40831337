package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://events@localhost/events")
	for _, k := range []string{"RESCAN_LIMIT", "RESCAN_BATCH", "RESCAN_PAUSE", "RECONCILE_EVERY", "HTTP_ADDR", "REDIS_URL"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 1000, cfg.RescanLimit)
	require.Equal(t, 100, cfg.RescanBatch)
	require.Equal(t, 2*time.Second, cfg.RescanPause)
	require.Equal(t, time.Hour, cfg.ReconcileEvery)
	require.Equal(t, ":8080", cfg.HTTPAddr)
	require.Empty(t, cfg.RedisURL)
}

func TestLoad_Errors(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := Load()
	require.ErrorContains(t, err, "DATABASE_URL")

	t.Setenv("DATABASE_URL", "postgres://x")
	t.Setenv("RESCAN_PAUSE", "soon")
	_, err = Load()
	require.ErrorContains(t, err, "RESCAN_PAUSE")

	t.Setenv("RESCAN_PAUSE", "")
	t.Setenv("RESCAN_BATCH", "0")
	_, err = Load()
	require.Error(t, err)
}

func TestLoadWeights(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weights.yaml")
	require.NoError(t, os.WriteFile(path, []byte("weights:\n  \"🧩\": 1\n  \"🍒\": 2\n  \"🚥\": 3\n"), 0o600))

	w, err := LoadWeights(path)
	require.NoError(t, err)
	require.Equal(t, map[string]int{"🧩": 1, "🍒": 2, "🚥": 3}, w)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("weights:\n  x: -1\n"), 0o600))
	_, err = LoadWeights(bad)
	require.ErrorContains(t, err, "negative")

	_, err = LoadWeights(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}
