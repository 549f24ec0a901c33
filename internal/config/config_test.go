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
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 2, cfg.Queue.MaxConcurrency)
	assert.Equal(t, 16, cfg.Queue.MaxQueueSize)
	assert.Equal(t, 30*time.Second, cfg.QueueTimeout())
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 2, cfg.Browser.LaunchRetries)
	assert.Equal(t, 3, cfg.Extract.MaxAttempts)
	assert.Equal(t, 2000, cfg.Extract.BackoffBaseMs)
	assert.Equal(t, 4, cfg.Batch.MaxConcurrency)
	assert.Equal(t, "memory", cfg.Cache.Provider)
	assert.Equal(t, 24*time.Hour, cfg.CacheTTL())
	assert.Equal(t, 0.5, cfg.RateLimit.QPS)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
queue:
  max_concurrency: 4
  max_queue_size: 32
  timeout_ms: 5000
cache:
  provider: noop
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Queue.MaxConcurrency)
	assert.Equal(t, 32, cfg.Queue.MaxQueueSize)
	assert.Equal(t, 5*time.Second, cfg.QueueTimeout())
	assert.Equal(t, "noop", cfg.Cache.Provider)
	// Untouched sections keep their defaults.
	assert.Equal(t, 3, cfg.Extract.MaxAttempts)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base, err := Load("")
	require.NoError(t, err)

	bad := base
	bad.Server.Port = 0
	require.Error(t, bad.Validate())

	bad = base
	bad.Queue.MaxConcurrency = 0
	require.Error(t, bad.Validate())

	bad = base
	bad.Queue.MaxQueueSize = base.Queue.MaxConcurrency - 1
	require.Error(t, bad.Validate())

	bad = base
	bad.Queue.TimeoutMs = 0
	require.Error(t, bad.Validate())

	bad = base
	bad.Extract.MaxAttempts = 0
	require.Error(t, bad.Validate())

	bad = base
	bad.Cache.Provider = "redis"
	require.Error(t, bad.Validate())

	bad = base
	bad.Cache.Provider = "postgres"
	bad.Cache.DSN = ""
	require.Error(t, bad.Validate())

	bad.Cache.DSN = "postgres://localhost/transcripts"
	require.NoError(t, bad.Validate())
}
