package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  address: ":9000"
rooms:
  retention: 0s
  max_history: 10
uploads:
  max_bytes: 1024
db:
  driver: sqlite
`), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Address)
	assert.Equal(t, time.Duration(0), cfg.Rooms.Retention)
	assert.Equal(t, 10, cfg.Rooms.MaxHistory)
	assert.Equal(t, int64(1024), cfg.Uploads.MaxBytes)
	assert.Equal(t, "sqlite", cfg.DB.Driver)

	// untouched keys keep their defaults
	assert.Equal(t, 6, cfg.Rooms.CodeLength)
	assert.Equal(t, 300*time.Millisecond, cfg.Typing.MinInterval)
	assert.Equal(t, 256, cfg.WS.SendBuffer)
}

func TestLoadEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: info\n"), 0o644))

	t.Setenv("CODECHAT_LOG_LEVEL", "debug")
	t.Setenv("CODECHAT_ROOMS_MAX_HISTORY", "5")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 5, cfg.Rooms.MaxHistory)
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, int64(16<<20), cfg.Uploads.MaxBytes)
	assert.Equal(t, 2*time.Minute, cfg.Rooms.Retention)
}
