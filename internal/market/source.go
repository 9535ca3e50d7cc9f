package market

import "context"

// FetchRequest describes one outbound candle request.
type FetchRequest struct {
	Instrument  string
	Granularity string
	Count       int
	// Before is an exclusive upper bound in Unix seconds for historical
	// backfill. Zero means "most recent available".
	Before int64
}

// Source unifies candle providers behind one fetch call.
type Source interface {
	Fetch(ctx context.Context, req FetchRequest) ([]Candle, error)
	Name() string
}

// CandleEvent is one streamed candle update for a series.
type CandleEvent struct {
	Instrument  string
	Granularity string
	Candle      Candle
}

// Streamer is implemented by sources that can push live candle updates.
type Streamer interface {
	Stream(ctx context.Context, instrument, granularity string) (<-chan CandleEvent, error)
}
