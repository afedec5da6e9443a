package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	// no config file anywhere: defaults only
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, []string{"ort", "techno", "heuballern", "band"}, cfg.Stations.Names)
	assert.Equal(t, 3, cfg.Import.Workers)
	assert.Equal(t, ";", cfg.Import.Delimiter)
	assert.Equal(t, "_gsdata_", cfg.Import.IgnorePrefix)
	assert.Equal(t, 10*time.Minute, cfg.Weather.Staleness)
	assert.Equal(t, 5, cfg.Weather.MaxConcurrent)
	assert.Equal(t, 5*time.Minute, cfg.Cache.DefaultTTL)
	assert.Equal(t, 30*time.Second, cfg.Watcher.RescanInterval)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9999
  mode: release
stations:
  data_dir: /srv/stations
  names:
    - ort
import:
  workers: 8
weather:
  staleness: 20m
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "release", cfg.Server.Mode)
	assert.Equal(t, []string{"ort"}, cfg.Stations.Names)
	assert.Equal(t, 8, cfg.Import.Workers)
	assert.Equal(t, 20*time.Minute, cfg.Weather.Staleness)
	// unset keys keep their defaults
	assert.Equal(t, ";", cfg.Import.Delimiter)
	assert.Equal(t, 5*time.Minute, cfg.Weather.UpdateInterval)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_DSN", "postgres://festival:secret@db/noise")
	t.Setenv("WEATHER_API_KEY", "k-123")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 8081\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://festival:secret@db/noise", cfg.Database.DSN)
	assert.Equal(t, "k-123", cfg.Weather.APIKey)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not: valid\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestStationDir(t *testing.T) {
	s := StationsConfig{DataDir: "/data/stations", Names: []string{"ort"}}
	assert.Equal(t, filepath.Join("/data/stations", "ort"), s.Dir("ort"))
}
