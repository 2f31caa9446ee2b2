package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	// Run from a directory with no config.yaml so only defaults apply.
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "fs", cfg.Blob.Backend)
	assert.Equal(t, "http://localhost:8080", cfg.Queue.HandlerBaseURL)
	assert.Equal(t, 10, cfg.Queue.DefaultDelaySecs)
	assert.Equal(t, int64(8192), cfg.Anthropic.MaxTokens)
	assert.Equal(t, 600, cfg.Runner.TimeoutSecs)
	assert.Equal(t, 5, cfg.Simulation.MaxSimultaneousRuns)
	assert.Equal(t, 30, cfg.Simulation.SplitDelaySecs)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ILUMINA_STORE_DRIVER", "postgres")
	t.Setenv("ILUMINA_STORE_DATABASE_URL", "postgres://localhost/ilumina")
	t.Setenv("ILUMINA_QUEUE_SECRET", "hunter2")
	t.Setenv("ILUMINA_SIMULATION_MAX_SIMULTANEOUS_RUNS", "2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/ilumina", cfg.Store.DatabaseURL)
	assert.Equal(t, "hunter2", cfg.Queue.Secret)
	assert.Equal(t, 2, cfg.Simulation.MaxSimultaneousRuns)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	yaml := `
store:
  driver: sqlite
  database_url: /data/pipeline.db
server:
  port: 9090
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile("config.yaml", []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/data/pipeline.db", cfg.Store.DatabaseURL)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
	assert.Error(t, InitLogger(LogConfig{Level: "not-a-level"}))
}
