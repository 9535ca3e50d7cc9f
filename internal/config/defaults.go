package config

import "time"

func (c *Config) applyDefaults() {
	if c.App.Addr == "" {
		c.App.Addr = ":9980"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Upstream.Provider == "" {
		c.Upstream.Provider = "rates"
	}
	if c.Upstream.Timeout <= 0 {
		c.Upstream.Timeout = 15 * time.Second
	}
	if c.Upstream.MaxAttempts <= 0 {
		c.Upstream.MaxAttempts = 3
	}
	if c.Upstream.BackoffBase <= 0 {
		c.Upstream.BackoffBase = time.Second
	}
	if c.Upstream.Cooldown <= 0 {
		c.Upstream.Cooldown = 60 * time.Second
	}
	if c.Backfill.InitialCount <= 0 {
		c.Backfill.InitialCount = 5000
	}
	if c.Backfill.BatchCount <= 0 {
		c.Backfill.BatchCount = 1000
	}
	if c.Backfill.EdgeThresholdBars <= 0 {
		c.Backfill.EdgeThresholdBars = 10
	}
}
