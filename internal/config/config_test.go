package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "binance:\n  testnet: true\nstorage:\n  url: http://localhost:8086\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Binance.Testnet)
	assert.Equal(t, "1m", cfg.Replay.Interval)
	assert.Equal(t, 1000, cfg.Replay.BaseTickMs)
	assert.Equal(t, 100, cfg.Replay.Lookback)
	assert.Equal(t, 1.0, cfg.Replay.Speed)
	assert.Equal(t, 20, cfg.Overlays.SMAPeriod)
	assert.Equal(t, "pools.yaml", cfg.Pools.File)
	assert.Equal(t, 50, cfg.UI.LogLines)
}

func TestLoadExplicitValuesWin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "replay:\n  interval: 5m\n  base_tick_ms: 250\n  lookback: 60\n  speed: 2.5\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "5m", cfg.Replay.Interval)
	assert.Equal(t, 250, cfg.Replay.BaseTickMs)
	assert.Equal(t, 60, cfg.Replay.Lookback)
	assert.Equal(t, 2.5, cfg.Replay.Speed)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "нет.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("replay: [не, мапа]"), 0644))
	_, err = Load(path)
	assert.Error(t, err)
}
