package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bar(t int64, close float64) Candle {
	return Candle{Time: t, Open: close, High: close, Low: close, Close: close}
}

func times(bars []Candle) []int64 {
	out := make([]int64, len(bars))
	for i, b := range bars {
		out[i] = b.Time
	}
	return out
}

func TestSetSortsAndDeduplicates(t *testing.T) {
	cache := NewSeriesCache()
	cache.Set("BTC_USDT", "M1", []Candle{bar(300, 3), bar(100, 1), bar(200, 2), bar(100, 9)})

	got, ok := cache.Get("BTC_USDT", "M1")
	require.True(t, ok)
	assert.Equal(t, []int64{100, 200, 300}, times(got))
	// Later occurrence of a duplicate time wins.
	assert.Equal(t, 9.0, got[0].Close)
}

func TestGetDistinguishesAbsentFromEmpty(t *testing.T) {
	cache := NewSeriesCache()

	got, ok := cache.Get("BTC_USDT", "M1")
	assert.False(t, ok)
	assert.Nil(t, got)

	cache.Set("BTC_USDT", "M1", nil)
	got, ok = cache.Get("BTC_USDT", "M1")
	assert.True(t, ok)
	assert.Empty(t, got)
}

func TestGetReturnsCopy(t *testing.T) {
	cache := NewSeriesCache()
	cache.Set("BTC_USDT", "M1", []Candle{bar(100, 1)})

	got, _ := cache.Get("BTC_USDT", "M1")
	got[0].Close = 42

	again, _ := cache.Get("BTC_USDT", "M1")
	assert.Equal(t, 1.0, again[0].Close)
}

func TestMergeIncomingWins(t *testing.T) {
	cache := NewSeriesCache()
	cache.Set("BTC_USDT", "M1", []Candle{bar(100, 1), bar(200, 2), bar(300, 3)})
	cache.Merge("BTC_USDT", "M1", []Candle{bar(200, 20), bar(400, 4)})

	got, _ := cache.Get("BTC_USDT", "M1")
	assert.Equal(t, []int64{100, 200, 300, 400}, times(got))
	assert.Equal(t, 20.0, got[1].Close)
	// Non-overlapping stored bars survive the merge untouched.
	assert.Equal(t, 1.0, got[0].Close)
	assert.Equal(t, 3.0, got[2].Close)
}

func TestMergeOlderPageExtendsFront(t *testing.T) {
	cache := NewSeriesCache()
	cache.Set("BTC_USDT", "M1", []Candle{bar(1000, 1), bar(2000, 2), bar(3000, 3)})
	cache.Merge("BTC_USDT", "M1", []Candle{bar(500, 5), bar(1000, 10)})

	got, _ := cache.Get("BTC_USDT", "M1")
	assert.Equal(t, []int64{500, 1000, 2000, 3000}, times(got))
	assert.Equal(t, 10.0, got[1].Close)

	rng, ok := cache.TimeRange("BTC_USDT", "M1")
	require.True(t, ok)
	assert.Equal(t, TimeRange{Oldest: 500, Newest: 3000}, rng)
}

func TestMergeIntoAbsentSeriesCreatesEntry(t *testing.T) {
	cache := NewSeriesCache()
	cache.Merge("ETH_USDT", "H1", []Candle{bar(200, 2), bar(100, 1)})

	got, ok := cache.Get("ETH_USDT", "H1")
	require.True(t, ok)
	assert.Equal(t, []int64{100, 200}, times(got))
}

func TestSeriesAreIndependent(t *testing.T) {
	cache := NewSeriesCache()
	cache.Set("BTC_USDT", "M1", []Candle{bar(100, 1)})
	cache.Set("BTC_USDT", "H1", []Candle{bar(100, 2)})
	cache.Set("ETH_USDT", "M1", []Candle{bar(100, 3)})

	cache.Clear("BTC_USDT", "M1")

	_, ok := cache.Get("BTC_USDT", "M1")
	assert.False(t, ok)
	assert.Equal(t, 1, cache.Len("BTC_USDT", "H1"))
	assert.Equal(t, 1, cache.Len("ETH_USDT", "M1"))
}

func TestClearAll(t *testing.T) {
	cache := NewSeriesCache()
	cache.Set("BTC_USDT", "M1", []Candle{bar(100, 1)})
	cache.Set("ETH_USDT", "M1", []Candle{bar(100, 2)})

	cache.ClearAll()
	assert.Empty(t, cache.Keys())
}

func TestTimeRangeAbsentOrEmpty(t *testing.T) {
	cache := NewSeriesCache()
	_, ok := cache.TimeRange("BTC_USDT", "M1")
	assert.False(t, ok)

	cache.Set("BTC_USDT", "M1", nil)
	_, ok = cache.TimeRange("BTC_USDT", "M1")
	assert.False(t, ok)
}

func TestKeysSorted(t *testing.T) {
	cache := NewSeriesCache()
	cache.Set("ETH_USDT", "M1", nil)
	cache.Set("BTC_USDT", "H1", nil)
	cache.Set("BTC_USDT", "M1", nil)

	assert.Equal(t, []SeriesKey{
		{Instrument: "BTC_USDT", Granularity: "H1"},
		{Instrument: "BTC_USDT", Granularity: "M1"},
		{Instrument: "ETH_USDT", Granularity: "M1"},
	}, cache.Keys())
}
