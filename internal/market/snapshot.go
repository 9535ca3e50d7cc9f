package market

import (
	"fmt"
	"strings"
	"time"
)

// Candles is a time-ascending bar window.
type Candles []Candle

// Snapshot renders a one-line description of the window for logs:
// close, change over the window and the low-high span.
func (cs Candles) Snapshot(granularity string) string {
	if len(cs) == 0 {
		return "empty"
	}
	first := cs[0]
	last := cs[len(cs)-1]
	low, high := first.Low, first.High
	for _, b := range cs[1:] {
		if b.Low < low {
			low = b.Low
		}
		if b.High > high {
			high = b.High
		}
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "close=%g", last.Close)
	if base := first.Open; base != 0 {
		fmt.Fprintf(&sb, " (%+.2f%%/%dx%s)", (last.Close-base)/base*100, len(cs), NormalizeGranularity(granularity))
	}
	fmt.Fprintf(&sb, " span=%g..%g", low, high)
	fmt.Fprintf(&sb, " %s..%s",
		time.Unix(first.Time, 0).UTC().Format("01-02 15:04"),
		time.Unix(last.Time, 0).UTC().Format("01-02 15:04"))
	return sb.String()
}
