package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mabletask/tracker/models"
)

func TestSetDefaults(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)

	assert.Equal(t, defaultServiceName, cfg.Service.Name)
	assert.Equal(t, defaultServicePort, cfg.Service.Port)
	assert.Equal(t, defaultSessionTTL, cfg.Service.SessionTTL)
	assert.Equal(t, 30*time.Second, cfg.Tracker.IdleTimeout)
	assert.Equal(t, time.Second, cfg.Tracker.TickInterval)
	assert.Equal(t, 10*time.Second, cfg.Tracker.RuleCheckInterval)
	assert.Equal(t, 30*time.Second, cfg.Tracker.SyncInterval)
	assert.Equal(t, 30*time.Second, cfg.Tracker.MinSessionDuration)
	assert.Equal(t, 200*time.Millisecond, cfg.Tracker.ScrollThrottle)
	assert.InDelta(t, 5.0, cfg.Tracker.Gold.GoldThresholdMinutes, 1e-9)
	assert.Equal(t, defaultRedisAddress, cfg.Redis.Address)
	assert.Equal(t, defaultCHNativePort, cfg.ClickHouse.NativePort)
	assert.Equal(t, defaultLoggingLevel, cfg.Logging.Level)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	yml := `
service:
  port: 9090
tracker:
  idle_timeout: 45s
  gold:
    gold_threshold_minutes: 3
    external_counter_id: "12345"
    gold_config:
      - id: scroll
        metric_path: behavior.max_scroll_depth
        type: threshold
        value: 50
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))
	t.Setenv("ENV_FILE", filepath.Join(dir, "missing.env"))
	t.Setenv("PORT", "7070")
	t.Setenv("TRACKER_SYNC_INTERVAL", "1m")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Service.Port)
	assert.Equal(t, 45*time.Second, cfg.Tracker.IdleTimeout)
	assert.Equal(t, time.Minute, cfg.Tracker.SyncInterval)
	assert.Equal(t, "12345", cfg.Tracker.Gold.ExternalCounterID)
	require.Len(t, cfg.Tracker.Gold.GoldRules, 1)
	assert.Equal(t, "behavior.max_scroll_depth", cfg.Tracker.Gold.GoldRules[0].MetricPath)
	assert.Equal(t, models.RuleThreshold, cfg.Tracker.Gold.GoldRules[0].Type)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.NoError(t, err)
	assert.Equal(t, defaultServicePort, cfg.Service.Port)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)
	require.NoError(t, cfg.Validate())

	cfg.Database.Enabled = true
	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, "database.url: is required when database is enabled", err.Error())

	cfg.Database.URL = "postgres://localhost/tracker"
	cfg.Service.Port = 70000
	err = cfg.Validate()
	require.Error(t, err)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "service.port", ve.Field)
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	assert.Equal(t, "config.yml", GetConfigPath("config.yml"))

	t.Setenv("CONFIG_PATH", "/etc/tracker.yml")
	assert.Equal(t, "/etc/tracker.yml", GetConfigPath("config.yml"))
}
