package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlagsDefaults(t *testing.T) {
	cfg, err := ParseFlags(nil)
	require.NoError(t, err)
	assert.True(t, cfg.EnableMic)
	assert.False(t, cfg.EnableSystem)
	assert.False(t, cfg.HighQualityResample)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestParseFlagsOverridesDefaults(t *testing.T) {
	cfg, err := ParseFlags([]string{"--system", "--hq-resample", "--log-level=debug", "--sys-device=sck"})
	require.NoError(t, err)
	assert.True(t, cfg.EnableSystem)
	assert.True(t, cfg.HighQualityResample)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "sck", cfg.SysDeviceID)
}

func TestParseFlagsRejectsBothCaptureSourcesDisabled(t *testing.T) {
	_, err := ParseFlags([]string{"--mic=false"})
	assert.Error(t, err)
}

func TestParseFlagsRejectsInvalidLogLevel(t *testing.T) {
	_, err := ParseFlags([]string{"--log-level=verbose"})
	assert.Error(t, err)
}

func TestParseFlagsLoadsYAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("enable_system: true\nlog_level: warn\n"), 0o600))

	cfg, err := ParseFlags([]string{"--config=" + path})
	require.NoError(t, err)
	assert.True(t, cfg.EnableSystem)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestParseFlagsCLIOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: warn\n"), 0o600))

	cfg, err := ParseFlags([]string{"--config=" + path, "--log-level=debug"})
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestParseFlagsEnvOverlayOverridesYAMLButNotFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: warn\n"), 0o600))

	t.Setenv("STTCAPTURE_LOG_LEVEL", "debug")

	cfg, err := ParseFlags([]string{"--config=" + path})
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel, "env should override the YAML file")

	cfg, err = ParseFlags([]string{"--config=" + path, "--log-level=error"})
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.LogLevel, "an explicit flag should still override env")
}

func TestParseFlagsEnvOverlayParsesBoolFields(t *testing.T) {
	t.Setenv("STTCAPTURE_SYSTEM", "true")
	t.Setenv("STTCAPTURE_MIC", "false")

	cfg, err := ParseFlags(nil)
	require.NoError(t, err)
	assert.True(t, cfg.EnableSystem)
	assert.False(t, cfg.EnableMic)
}

func TestListDevicesSkipsValidation(t *testing.T) {
	cfg, err := ParseFlags([]string{"--list-devices", "--mic=false"})
	require.NoError(t, err)
	assert.True(t, cfg.ListDevices)
}
