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
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	t.Setenv("MAPBOX_ACCESS_TOKEN", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.Search.DebounceMs)
	assert.Equal(t, 6, cfg.Search.PreviewLimit)
	assert.Equal(t, 8, cfg.Search.MaxSuggestions)
	assert.Equal(t, 5, cfg.Geocoder.Limit)
	assert.Empty(t, cfg.Geocoder.Token, "no token is a valid configuration")
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 8080

[geocoder]
token = "from-file"
bbox = [18.0, -34.5, 19.5, -33.0]

[search]
debounce_ms = 150

[trails]
file = "trails.yaml"
`)
	t.Setenv("MAPBOX_ACCESS_TOKEN", "from-env")
	t.Setenv("PORT", "")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.Geocoder.Token)
	assert.Equal(t, [4]float64{18.0, -34.5, 19.5, -33.0}, cfg.Geocoder.BBox)
	assert.Equal(t, 150, cfg.Search.DebounceMs)
	assert.Equal(t, 8, cfg.Search.MaxSuggestions, "unset keys keep defaults")
	assert.Equal(t, "trails.yaml", cfg.Trails.File)
	assert.Equal(t, 150*time.Millisecond, Ms(cfg.Search.DebounceMs))
}

func TestLoadPathFromEnv(t *testing.T) {
	path := writeConfig(t, "[log]\nlevel = \"debug\"\n")
	t.Setenv(EnvConfigPath, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "[search]\ndebounce = 10\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search.debounce")
}

func TestLoadRejectsBadTOML(t *testing.T) {
	path := writeConfig(t, "[search\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Server.Port = 0
	cfg.Geocoder.BBox = [4]float64{19, -33, 18, -34}
	cfg.Search.GeocodedReduced = 9
	cfg.Policy.CircuitThreshold = 2

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"server.port", "geocoder.bbox", "geocoded_reduced", "circuit_threshold"} {
		assert.Contains(t, err.Error(), want)
	}
}
