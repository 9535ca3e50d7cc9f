package config

import (
	"fmt"
	"strings"

	"chartfeed/internal/market"
)

func validate(c *Config) error {
	switch strings.ToLower(strings.TrimSpace(c.Upstream.Provider)) {
	case "rates":
		if strings.TrimSpace(c.Upstream.BaseURL) == "" {
			return fmt.Errorf("upstream.base_url is required for the rates provider")
		}
	case "binance":
	default:
		return fmt.Errorf("unknown upstream.provider %q (want rates or binance)", c.Upstream.Provider)
	}
	if c.Live.Enabled {
		if len(c.Live.Instruments) == 0 || len(c.Live.Granularities) == 0 {
			return fmt.Errorf("live.instruments and live.granularities are required when live.enabled")
		}
		for _, g := range c.Live.Granularities {
			if !market.ValidGranularity(g) {
				return fmt.Errorf("live.granularities: unknown granularity %q", g)
			}
		}
	}
	return nil
}
