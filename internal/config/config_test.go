package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lumirise.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoad_AppliesDefaultsToZeroValuedFields(t *testing.T) {
	path := writeConfig(t, `
broker:
  server: mqtt.example.com
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "mqtt.example.com", cfg.Broker.Server)
	assert.Equal(t, 1883, cfg.Broker.Port)
	assert.Equal(t, "lumirise", cfg.Broker.ClientID)
	assert.Equal(t, 60, cfg.Broker.KeepAliveSeconds)
	assert.Equal(t, time.Second, cfg.Reconnect.BaseDelay())
	assert.Equal(t, 30*time.Second, cfg.Reconnect.MaxDelay())
	assert.Equal(t, 2.0, cfg.Reconnect.BackoffMultiplier)
	assert.Equal(t, 5*time.Second, cfg.Publish.CommandTimeout())
	assert.Equal(t, 20, cfg.Publish.CommandQueueDepth)
	assert.Equal(t, 20, cfg.Dimmer.MinimumBrightnessPercent)
	assert.Equal(t, 100*time.Millisecond, cfg.Dimmer.RampStepDelay())
	assert.Equal(t, "cmnd/dimmer/power", cfg.Topics.PowerCommand)
	assert.Equal(t, "stat/dimmer/POWER", cfg.Topics.PowerStatus)
	assert.Equal(t, "cmnd/dimmer/dimmer", cfg.Topics.BrightnessCommand)
	assert.Equal(t, "stat/dimmer/RESULT", cfg.Topics.BrightnessStatus)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_PreservesExplicitValues(t *testing.T) {
	path := writeConfig(t, `
broker:
  server: mqtt.example.com
  port: 8883
reconnect:
  reconnectionDelayMs: 250
dimmer:
  minimumBrightnessPercent: 5
log:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8883, cfg.Broker.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.Reconnect.BaseDelay())
	assert.Equal(t, 5, cfg.Dimmer.MinimumBrightnessPercent)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_MissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestLoad_MalformedYAMLReturnsError(t *testing.T) {
	path := writeConfig(t, "broker: [this is not a mapping")
	_, err := Load(path)
	assert.Error(t, err)
}
