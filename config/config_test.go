package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.True(t, cfg.Persist())
	assert.Equal(t, time.Duration(0), cfg.Upstream.Timeout())
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8080
upstream:
  base_url: "http://bart.example.com/api"
  key: "SOME-KEY"
  timeoutMS: 2000
storage:
  driver: memory
persist_departures: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "http://bart.example.com/api", cfg.Upstream.BaseURL)
	assert.Equal(t, "SOME-KEY", cfg.Upstream.Key)
	assert.Equal(t, 2*time.Second, cfg.Upstream.Timeout())
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.False(t, cfg.Persist())
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: mysql
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsBadURL(t *testing.T) {
	path := writeConfig(t, `
upstream:
  base_url: "not a url"
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "server: [what")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSQLitePathExplicit(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "bart.db")
	cfg := &AppConfig{Storage: StorageConfig{Path: dbPath}}

	assert.Equal(t, dbPath, cfg.SQLitePath())

	// The parent directory gets created along the way.
	_, err := os.Stat(filepath.Dir(dbPath))
	assert.NoError(t, err)
}

func TestSQLitePathFallback(t *testing.T) {
	// A parent that cannot be created forces the bare filename.
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	cfg := &AppConfig{Storage: StorageConfig{Path: filepath.Join(blocker, "sub", "bart.db")}}
	assert.Equal(t, fallbackDB, cfg.SQLitePath())
}
