package reco

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, -1, cfg.EventSource.MaxEvents)
	assert.Equal(t, "Tailcuts_cleaner", cfg.ImageProcessor.ImageCleanerType)
	assert.Equal(t, []string{"HillasReconstructor"}, cfg.ShowerProcessor.ReconstructorTypes)
	assert.Equal(t, DefaultCalibratorConfig(), cfg.Calibrator)
}

func TestLoadConfig_EmptyPathReturnsDefault(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_MergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"EventSource": {"max_events": 100}}`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.EventSource.MaxEvents)
	// untouched sections keep their defaults.
	assert.Equal(t, "Tailcuts_cleaner", cfg.ImageProcessor.ImageCleanerType)
}

func TestLoadConfig_MissingFileIsError(t *testing.T) {
	_, err := LoadConfig("/nonexistent/path/config.json")
	assert.ErrorIs(t, err, ErrFileOpen)
}

func TestLoadConfig_InvalidJSONIsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	_, err := LoadConfig(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestShowerProcessorConfig_BuildShowerSelector(t *testing.T) {
	cfg := ShowerProcessorConfig{}
	selector, err := cfg.BuildShowerSelector()
	require.NoError(t, err)
	assert.Nil(t, selector)

	cfg = ShowerProcessorConfig{Selectors: map[string]string{"a": "hillas.intensity > 0"}}
	selector, err = cfg.BuildShowerSelector()
	require.NoError(t, err)
	require.NotNil(t, selector)

	cfg = ShowerProcessorConfig{Selectors: map[string]string{"a": "not valid go"}}
	_, err = cfg.BuildShowerSelector()
	assert.Error(t, err)
}
