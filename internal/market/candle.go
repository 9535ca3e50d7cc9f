package market

// Candle is one OHLC bar. Time is the bar open time in Unix seconds and is
// the sort/dedup key within a series.
type Candle struct {
	Time  int64   `json:"time"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// SeriesKey identifies one candle series. Two keys that differ in either
// field are fully independent series.
type SeriesKey struct {
	Instrument  string `json:"instrument"`
	Granularity string `json:"granularity"`
}

func (k SeriesKey) String() string { return k.Instrument + "@" + k.Granularity }

// TimeRange is the oldest/newest bar open time of a non-empty series.
type TimeRange struct {
	Oldest int64 `json:"oldest"`
	Newest int64 `json:"newest"`
}
