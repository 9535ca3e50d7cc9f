package market

import (
	"context"
	"fmt"

	"chartfeed/internal/logger"
)

// LiveUpdater merges streamed candle updates into the cache through the same
// Merge path used by backfill, so a forming bar simply overwrites its open
// time slot.
type LiveUpdater struct {
	Cache  *SeriesCache
	Source Streamer

	OnEvent func(CandleEvent)
}

func NewLiveUpdater(cache *SeriesCache, src Streamer) *LiveUpdater {
	return &LiveUpdater{Cache: cache, Source: src}
}

// Start subscribes one series and consumes it until ctx is cancelled or the
// stream closes. Call once per series.
func (u *LiveUpdater) Start(ctx context.Context, instrument, granularity string) error {
	if u.Source == nil {
		return fmt.Errorf("live updater missing stream source")
	}
	events, err := u.Source.Stream(ctx, instrument, granularity)
	if err != nil {
		return err
	}
	go u.consume(ctx, events)
	logger.Infof("[live] subscribed %s@%s", instrument, granularity)
	return nil
}

func (u *LiveUpdater) consume(ctx context.Context, events <-chan CandleEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			u.Cache.Merge(evt.Instrument, evt.Granularity, []Candle{evt.Candle})
			if u.OnEvent != nil {
				u.OnEvent(evt)
			}
		}
	}
}
