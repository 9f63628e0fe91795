package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
input:
  suffix: tif
processing:
  workers: 4
  pixelSize: 0.33
channels:
  names:
    1: BF
    3: "--"
datasets:
  D2:
    pixelSize: 0.5
    names:
      2: GFP
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "tif", cfg.Input.Suffix)
	assert.Equal(t, 4, cfg.Processing.Workers)
	assert.Equal(t, 0.33, cfg.Processing.PixelSize)
	assert.Equal(t, "tif", cfg.Output.Extension)
	assert.Equal(t, map[int]string{1: "BF", 3: "--"}, cfg.Channels.Names)
	assert.Equal(t, 0.5, cfg.Datasets["D2"].PixelSize)
	assert.Equal(t, "GFP", cfg.Datasets["D2"].Names[2])
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("processing:\n  workers: 0\n  pixelSize: -1\n"), 0644))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "processing.workers")
	assert.Contains(t, err.Error(), "processing.pixelSize")
}

func TestCreateDefaultConfigFileRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, CreateDefaultConfigFile(path))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}
