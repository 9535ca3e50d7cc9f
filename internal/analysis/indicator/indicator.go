package indicator

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"chartfeed/internal/market"
)

// Report carries the latest indicator values for one series, as rendered in
// the dashboard metrics panel.
type Report struct {
	Instrument  string  `json:"instrument"`
	Granularity string  `json:"granularity"`
	Period      int     `json:"period"`
	Bars        int     `json:"bars"`
	SMA         float64 `json:"sma"`
	EMA         float64 `json:"ema"`
	RSI         float64 `json:"rsi"`
}

// Compute evaluates SMA/EMA/RSI over the closing prices. bars must be sorted
// ascending; the cache guarantees this.
func Compute(instrument, granularity string, bars []market.Candle, period int) (Report, error) {
	if period <= 1 {
		period = 14
	}
	if len(bars) < period+1 {
		return Report{}, fmt.Errorf("need at least %d bars for period %d, have %d", period+1, period, len(bars))
	}
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	rep := Report{
		Instrument:  instrument,
		Granularity: granularity,
		Period:      period,
		Bars:        len(bars),
		SMA:         last(talib.Sma(closes, period)),
		EMA:         last(talib.Ema(closes, period)),
		RSI:         last(talib.Rsi(closes, period)),
	}
	return rep, nil
}

func last(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) && series[i] != 0 {
			return series[i]
		}
	}
	return 0
}
