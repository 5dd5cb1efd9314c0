package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "host.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	path := writeConfig(t, `
[client]
name = "dev"
worlds = ["overworld", "the_nether"]

[tick]
max_ticks_per_frame = 4
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Client.Name)
	assert.Equal(t, []string{"overworld", "the_nether"}, cfg.Client.Worlds)
	assert.Equal(t, 4, cfg.Tick.MaxTicksPerFrame)
	assert.Equal(t, 50*time.Millisecond, cfg.Tick.TickRate)
	assert.Equal(t, "plugins/plugins.yaml", cfg.Plugins.Manifest)
	assert.False(t, cfg.Database.Enabled)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestLoadParsesDurations(t *testing.T) {
	path := writeConfig(t, `
[tick]
tick_rate = "100ms"
frame_rate = "10ms"

[database]
enabled = true
conn_max_lifetime = "5m"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 100*time.Millisecond, cfg.Tick.TickRate)
	assert.Equal(t, 10*time.Millisecond, cfg.Tick.FrameRate)
	assert.True(t, cfg.Database.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Database.ConnMaxLifetime)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := writeConfig(t, `
[tick]
max_ticks_per_frame = 0
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_ticks_per_frame")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadMalformed(t *testing.T) {
	_, err := Load(writeConfig(t, "[tick\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.validate())
	assert.Equal(t, 10, cfg.Tick.MaxTicksPerFrame)
	assert.NotSame(t, Defaults(), cfg, "each call returns a fresh config")
}
