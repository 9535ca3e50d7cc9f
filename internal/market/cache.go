package market

import (
	"sort"
	"sync"
)

// SeriesCache holds the authoritative, deduplicated, time-ascending view of
// fetched candles per series key. It owns merge and boundary-query logic and
// does no I/O. Safe for concurrent use.
type SeriesCache struct {
	mu   sync.RWMutex
	data map[SeriesKey][]Candle
}

func NewSeriesCache() *SeriesCache {
	return &SeriesCache{data: make(map[SeriesKey][]Candle)}
}

// Set replaces the entry for the series wholesale. Input is copied, sorted
// ascending by Time and deduplicated (last occurrence wins) before storage.
// An empty slice is a valid stored value, distinct from "no entry".
func (c *SeriesCache) Set(instrument, granularity string, bars []Candle) {
	key := SeriesKey{Instrument: instrument, Granularity: granularity}
	c.mu.Lock()
	c.data[key] = normalize(bars)
	c.mu.Unlock()
}

// Get returns a copy of the stored sequence. ok is false iff no entry exists
// for the key; a previously Set empty slice returns (empty, true).
func (c *SeriesCache) Get(instrument, granularity string) ([]Candle, bool) {
	key := SeriesKey{Instrument: instrument, Granularity: granularity}
	c.mu.RLock()
	defer c.mu.RUnlock()
	cur, ok := c.data[key]
	if !ok {
		return nil, false
	}
	out := make([]Candle, len(cur))
	copy(out, cur)
	return out, true
}

// Merge combines bars with the existing entry, creating one if absent. When
// an incoming bar shares its Time with a stored bar the incoming value wins,
// so a backfill can refresh a stale bar at the fetch boundary.
// Non-overlapping stored data is never lost.
func (c *SeriesCache) Merge(instrument, granularity string, bars []Candle) {
	key := SeriesKey{Instrument: instrument, Granularity: granularity}
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.data[key]
	if !ok {
		c.data[key] = normalize(bars)
		return
	}
	combined := make([]Candle, 0, len(cur)+len(bars))
	combined = append(combined, cur...)
	combined = append(combined, bars...)
	c.data[key] = normalize(combined)
}

// Clear removes the entry for one series. Clearing an absent key is a no-op.
func (c *SeriesCache) Clear(instrument, granularity string) {
	key := SeriesKey{Instrument: instrument, Granularity: granularity}
	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()
}

// ClearAll removes every entry for every key.
func (c *SeriesCache) ClearAll() {
	c.mu.Lock()
	c.data = make(map[SeriesKey][]Candle)
	c.mu.Unlock()
}

// TimeRange returns the first and last bar time for the series. ok is false
// when the entry is absent or empty.
func (c *SeriesCache) TimeRange(instrument, granularity string) (TimeRange, bool) {
	key := SeriesKey{Instrument: instrument, Granularity: granularity}
	c.mu.RLock()
	defer c.mu.RUnlock()
	cur := c.data[key]
	if len(cur) == 0 {
		return TimeRange{}, false
	}
	return TimeRange{Oldest: cur[0].Time, Newest: cur[len(cur)-1].Time}, true
}

// Len returns the number of stored bars for the series (0 when absent).
func (c *SeriesCache) Len(instrument, granularity string) int {
	key := SeriesKey{Instrument: instrument, Granularity: granularity}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data[key])
}

// Keys returns every key with an entry, sorted for stable listings.
func (c *SeriesCache) Keys() []SeriesKey {
	c.mu.RLock()
	out := make([]SeriesKey, 0, len(c.data))
	for k := range c.data {
		out = append(out, k)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Instrument != out[j].Instrument {
			return out[i].Instrument < out[j].Instrument
		}
		return out[i].Granularity < out[j].Granularity
	})
	return out
}

// normalize copies bars, sorts ascending by Time and collapses duplicate
// times keeping the last occurrence. With existing bars appended before
// incoming ones, the stable sort makes "last occurrence" mean incoming-wins.
func normalize(bars []Candle) []Candle {
	out := make([]Candle, len(bars))
	copy(out, bars)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	dst := out[:0]
	for _, b := range out {
		if n := len(dst); n > 0 && dst[n-1].Time == b.Time {
			dst[n-1] = b
			continue
		}
		dst = append(dst, b)
	}
	return dst
}
