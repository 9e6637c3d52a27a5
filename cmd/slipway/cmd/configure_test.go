package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slipway/slipway/internal/config"
)

func TestConfigure_SavesSettings(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	stdout, stderr := captureOutput(t)

	err := execute(t, "configure",
		"--environment", "production",
		"--timeout", "20m",
		"--manifest", "deploy/slipway.yaml")
	require.NoError(t, err)

	assert.Contains(t, stderr.String(), "Configuration saved")
	assert.Contains(t, stdout.String(), "config.yaml")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, 20*time.Minute, cfg.Timeout)
	assert.Equal(t, "deploy/slipway.yaml", cfg.Manifest)
}

func TestConfigure_UpdatePreservesExisting(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	captureOutput(t)

	require.NoError(t, execute(t, "configure", "--environment", "production"))
	resetFlags()
	require.NoError(t, execute(t, "configure", "--timeout", "10m"))

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Environment, "settings saved earlier survive an update")
	assert.Equal(t, 10*time.Minute, cfg.Timeout)
}

func TestConfigure_BadTimeout(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	captureOutput(t)

	err := execute(t, "configure", "--timeout", "soon")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid timeout")
}
