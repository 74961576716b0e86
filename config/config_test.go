package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesReproducedNumericDefaults(t *testing.T) {
	t.Parallel()

	cfg := Default()
	assert.Equal(t, 20, cfg.MaxSteps)
	assert.Equal(t, 30000, cfg.ConversationMemoryMaxChars)
	assert.Equal(t, 3000, cfg.SummaryBandMinChars)
	assert.Equal(t, 4000, cfg.SummaryBandMaxChars)
	assert.Equal(t, 0.40, cfg.RetentionRatio)
	assert.Equal(t, 3, cfg.RepeatedResultThreshold)
	assert.Equal(t, 1000*time.Millisecond, cfg.RetryBaseDelay)
	assert.Equal(t, 60000*time.Millisecond, cfg.RetryMaxDelay)
}

func TestLoadOverridesOnlySpecifiedFields(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_steps: 5\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.MaxSteps)
	assert.Equal(t, Default().RetryBaseDelay, cfg.RetryBaseDelay)
}

func TestLoadMissingFileFails(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalidYAMLFails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_steps: [this is not an int\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
