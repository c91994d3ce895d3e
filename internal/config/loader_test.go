// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "all", cfg.Gateway)
	assert.Equal(t, ":3000", cfg.Listen.Scenario)
	assert.Equal(t, "http://localhost:8188", cfg.Backends.Default)
	assert.Equal(t, 24*time.Hour, cfg.SessionMaxAge)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\ngateway: image\n"), 0o644))

	t.Setenv("GATEWAY", "merge")
	t.Setenv("FILE_MAX_AGE_HOURS", "0.5")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "merge", cfg.Gateway)
	assert.Equal(t, 30*time.Minute, cfg.FileMaxAge)
}

func TestLoadRejectsUnknownGateway(t *testing.T) {
	t.Setenv("GATEWAY", "transcode")
	t.Setenv("DATA_DIR", t.TempDir())

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown gateway")
}

func TestBackendFallsBackToDefault(t *testing.T) {
	cfg := Defaults()
	cfg.Backends.Video = "http://gpu2:8188"

	assert.Equal(t, "http://gpu2:8188", cfg.BackendFor("video"))
	assert.Equal(t, "http://localhost:8188", cfg.BackendFor("image"))
}

func TestResolvePathsAnchorsRelativeWorkflows(t *testing.T) {
	cfg := Defaults()
	cfg.DataDir = "/srv/adpipe"
	cfg.Workflows.Lipsync = "/abs/latentsync.json"
	cfg.ResolvePaths()

	assert.Equal(t, "/srv/adpipe/workflows/wan22_i2v.json", cfg.Workflows.I2V)
	assert.Equal(t, "/abs/latentsync.json", cfg.Workflows.Lipsync)
}
