package market

import (
	"strings"
	"time"
)

var granularitySeconds = map[string]int64{
	"S5": 5, "S10": 10, "S15": 15, "S30": 30,
	"M1": 60, "M2": 120, "M4": 240, "M5": 300,
	"M10": 600, "M15": 900, "M30": 1800,
	"H1": 3600, "H2": 7200, "H3": 10800, "H4": 14400,
	"H6": 21600, "H8": 28800, "H12": 43200,
	"D": 86400, "W": 604800,
	// Calendar months vary; 30 days is close enough for edge thresholds.
	"M": 2592000,
}

// NormalizeGranularity uppercases and trims a granularity string.
func NormalizeGranularity(g string) string {
	return strings.ToUpper(strings.TrimSpace(g))
}

// ValidGranularity reports whether g is one of the supported granularities
// (S5..S30, M1..M30, H1..H12, D, W, M).
func ValidGranularity(g string) bool {
	_, ok := granularitySeconds[NormalizeGranularity(g)]
	return ok
}

// GranularityDuration returns the bar width for g.
// Returns (0, false) on unknown input.
func GranularityDuration(g string) (time.Duration, bool) {
	secs, ok := granularitySeconds[NormalizeGranularity(g)]
	if !ok {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}
