package market

import "github.com/shopspring/decimal"

// SeriesSummary is a decimal-precise performance snapshot of one series, as
// shown in the dashboard metrics panel.
type SeriesSummary struct {
	Instrument  string `json:"instrument"`
	Granularity string `json:"granularity"`
	Bars        int    `json:"bars"`
	Oldest      int64  `json:"oldest"`
	Newest      int64  `json:"newest"`
	Open        string `json:"open"`
	Close       string `json:"close"`
	High        string `json:"high"`
	Low         string `json:"low"`
	Change      string `json:"change"`
	ChangePct   string `json:"change_pct"`
}

// Summarize computes the summary over bars, which must already be sorted
// ascending (the cache guarantees this). ok is false for an empty input.
func Summarize(instrument, granularity string, bars []Candle) (SeriesSummary, bool) {
	if len(bars) == 0 {
		return SeriesSummary{}, false
	}
	open := decimal.NewFromFloat(bars[0].Open)
	last := decimal.NewFromFloat(bars[len(bars)-1].Close)
	high := decimal.NewFromFloat(bars[0].High)
	low := decimal.NewFromFloat(bars[0].Low)
	for _, b := range bars[1:] {
		if h := decimal.NewFromFloat(b.High); h.GreaterThan(high) {
			high = h
		}
		if l := decimal.NewFromFloat(b.Low); l.LessThan(low) {
			low = l
		}
	}
	change := last.Sub(open)
	pct := decimal.Zero
	if !open.IsZero() {
		pct = change.Div(open).Mul(decimal.NewFromInt(100)).Round(4)
	}
	return SeriesSummary{
		Instrument:  instrument,
		Granularity: granularity,
		Bars:        len(bars),
		Oldest:      bars[0].Time,
		Newest:      bars[len(bars)-1].Time,
		Open:        open.String(),
		Close:       last.String(),
		High:        high.String(),
		Low:         low.String(),
		Change:      change.String(),
		ChangePct:   pct.String(),
	}, true
}
