package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/flowboard/internal/errors"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FLOWBOARD_HOME", t.TempDir())

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, filepath.Join(Home(), "flowboard.db"), cfg.Store.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 50*time.Millisecond, cfg.Board.Debounce)
	assert.Equal(t, 0, cfg.Board.HistoryLimit)
	assert.Equal(t, 2400.0, cfg.Board.CanvasWidth)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, 1.0, cfg.Telemetry.SampleRate)
}

func TestLoadFileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  address: ":9090"
board:
  debounce: 120ms
  history_limit: 25
user:
  id: alice
`), 0o600))
	t.Setenv("FLOWBOARD_LOG_LEVEL", "debug")
	t.Setenv("FLOWBOARD_USER_ID", "bob")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, 120*time.Millisecond, cfg.Board.Debounce)
	assert.Equal(t, 25, cfg.Board.HistoryLimit)
	assert.Equal(t, "debug", cfg.Log.Level, "environment overrides defaults")
	assert.Equal(t, "bob", cfg.User.ID, "environment overrides the file")
}

func TestLoadRejectsBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o600))

	_, err := Load(path)
	assert.Equal(t, errors.ErrCodeFileUnmarshal, errors.CodeOf(err))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty store path", func(c *Config) { c.Store.Path = "" }},
		{"negative debounce", func(c *Config) { c.Board.Debounce = -time.Millisecond }},
		{"negative history", func(c *Config) { c.Board.HistoryLimit = -1 }},
		{"zero canvas", func(c *Config) { c.Board.CanvasHeight = 0 }},
		{"sample rate", func(c *Config) { c.Telemetry.SampleRate = 1.5 }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
			require.NoError(t, err)
			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeConfigInvalid, errors.CodeOf(err))
		})
	}
}

func TestSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	require.NoError(t, Set(path, "board.history_limit", "10"))
	require.NoError(t, Set(path, "board.debounce", "250ms"))
	require.NoError(t, Set(path, "user.id", "carol"))
	require.NoError(t, Set(path, "telemetry.enabled", "true"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]map[string]any
	require.NoError(t, yaml.Unmarshal(raw, &doc))
	assert.Equal(t, 10, doc["board"]["history_limit"])
	assert.Equal(t, "250ms", doc["board"]["debounce"])

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Board.HistoryLimit)
	assert.Equal(t, 250*time.Millisecond, cfg.Board.Debounce)
	assert.Equal(t, "carol", cfg.User.ID)
	assert.True(t, cfg.Telemetry.Enabled)
}

func TestSetRejectsBadInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	err := Set(path, "board.colour", "red")
	assert.Equal(t, errors.ErrCodeConfigKey, errors.CodeOf(err))

	err = Set(path, "board.history_limit", "many")
	assert.Equal(t, errors.ErrCodeConfigInvalid, errors.CodeOf(err))

	err = Set(path, "telemetry.sample_rate", "3")
	assert.Equal(t, errors.ErrCodeConfigInvalid, errors.CodeOf(err))

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "nothing written for rejected values")
}

func TestKeysAreSorted(t *testing.T) {
	keys := Keys()
	assert.IsIncreasing(t, keys)
	assert.Contains(t, keys, "store.path")
	assert.Contains(t, keys, "user.id")
}

func TestYAMLRoundTrip(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)

	out, err := cfg.YAML()
	require.NoError(t, err)
	assert.Contains(t, string(out), "shutdown_timeout: 30s")
}
