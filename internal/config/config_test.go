package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jefflunt/tiny-outcome/internal/outcome"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "outcomed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 1024, cfg.HTTP.QueueSize)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, time.Hour, cfg.Redis.TTL)
	assert.Equal(t, 500, cfg.Tracker.Precision)
	assert.Equal(t, "one_third", cfg.Tracker.Warmup)
	assert.Equal(t, 0.66, cfg.Tracker.Threshold)
	assert.Equal(t, 20, cfg.Tracker.LatelyWindow)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 1024, cfg.MaxSignals)
}

func TestLoadFileWithOverrides(t *testing.T) {
	path := writeConfig(t, `
http:
  addr: ":9090"
  queue_size: 16
redis:
  enabled: true
  ttl: 30m
  recent_limit: 5
tracker:
  precision: 200
  warmup: half
signals:
  cache_hit:
    precision: 50
    warmup: "10"
  retry_ok:
    threshold: 0.9
log:
  level: debug
  pretty: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, 16, cfg.HTTP.QueueSize)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 30*time.Minute, cfg.Redis.TTL)
	assert.Equal(t, 5, cfg.Redis.RecentLimit)
	assert.True(t, cfg.Log.Pretty)

	hit := cfg.TrackerFor("cache_hit")
	assert.Equal(t, 50, hit.Precision)
	assert.Equal(t, "10", hit.Warmup)
	assert.Equal(t, 0.66, hit.Threshold)

	retry := cfg.TrackerFor("retry_ok")
	assert.Equal(t, 200, retry.Precision)
	assert.Equal(t, "half", retry.Warmup)
	assert.Equal(t, 0.9, retry.Threshold)

	assert.Equal(t, cfg.Tracker, cfg.TrackerFor("unknown"))

	tr, err := hit.NewTracker()
	require.NoError(t, err)
	assert.Equal(t, 10, tr.WarmupThreshold())
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "tracker:\n  precision: 200\n")
	t.Setenv("TRACKER_PRECISION", "64")
	t.Setenv("TRACKER_WARMUP", "full")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("HTTP_ADDR", ":7000")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 64, cfg.Tracker.Precision)
	assert.Equal(t, "full", cfg.Tracker.Warmup)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, ":7000", cfg.HTTP.Addr)
}

func TestLoadRejectsInvalidTracker(t *testing.T) {
	cases := map[string]string{
		"negative precision": "tracker:\n  precision: -1\n",
		"unknown warmup":     "tracker:\n  warmup: quarter\n",
		"warmup too large":   "tracker:\n  precision: 10\n  warmup: \"11\"\n",
		"threshold range":    "tracker:\n  threshold: 1.5\n",
		"bad signal":         "signals:\n  flaky:\n    warmup: sometimes\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.ErrorIs(t, err, outcome.ErrInvalidConfiguration)
		})
	}
}

func TestLoadRejectsBadAmbientSettings(t *testing.T) {
	_, err := Load(writeConfig(t, "log:\n  level: chatty\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "http:\n  queue_size: -2\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "max_signals: -1\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "max_signals: 1\nsignals:\n  a:\n    precision: 5\n  b:\n    precision: 6\n"))
	assert.ErrorContains(t, err, "max_signals 1")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
