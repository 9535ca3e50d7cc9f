package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
upstream:
  provider: rates
  base_url: https://rates.example.com/v1
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9980", cfg.App.Addr)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, 15*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, 3, cfg.Upstream.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Upstream.BackoffBase)
	assert.Equal(t, 60*time.Second, cfg.Upstream.Cooldown)
	assert.Equal(t, 5000, cfg.Backfill.InitialCount)
	assert.Equal(t, 1000, cfg.Backfill.BatchCount)
	assert.Equal(t, 10, cfg.Backfill.EdgeThresholdBars)
}

func TestLoadParsesDurationsAndOverrides(t *testing.T) {
	path := writeConfig(t, `
app:
  addr: ":8000"
  log_level: debug
upstream:
  provider: rates
  base_url: https://rates.example.com/v1
  timeout: 30s
  backoff_base: 500ms
  cooldown: 2m
backfill:
  initial_count: 200
  batch_count: 50
  edge_threshold_bars: 5
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":8000", cfg.App.Addr)
	assert.Equal(t, 30*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Upstream.BackoffBase)
	assert.Equal(t, 2*time.Minute, cfg.Upstream.Cooldown)
	assert.Equal(t, 200, cfg.Backfill.InitialCount)
	assert.Equal(t, 50, cfg.Backfill.BatchCount)
	assert.Equal(t, 5, cfg.Backfill.EdgeThresholdBars)
}

func TestLoadRejectsRatesWithoutBaseURL(t *testing.T) {
	path := writeConfig(t, `
upstream:
  provider: rates
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "base_url")
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	path := writeConfig(t, `
upstream:
  provider: kraken
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "upstream.provider")
}

func TestLoadRejectsLiveWithoutSeries(t *testing.T) {
	path := writeConfig(t, `
upstream:
  provider: binance
live:
  enabled: true
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "live.instruments")
}

func TestLoadRejectsBadLiveGranularity(t *testing.T) {
	path := writeConfig(t, `
upstream:
  provider: binance
live:
  enabled: true
  instruments: [BTC_USDT]
  granularities: [M3]
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "granularity")
}

func TestDumpRedactsSecrets(t *testing.T) {
	path := writeConfig(t, `
upstream:
  provider: rates
  base_url: https://rates.example.com/v1
  token: super-secret
binance:
  api_key: key
  secret: hush
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	dump := cfg.Dump()
	assert.NotContains(t, dump, "super-secret")
	assert.NotContains(t, dump, "hush")
	assert.Contains(t, dump, "***")
}
