package journal

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRoundTrip(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	store.RecordFetch(ctx, FetchRecord{TraceID: "a", Instrument: "BTC_USDT", Granularity: "M1", Direction: "initial", Count: 100, Bars: 100})
	store.RecordFetch(ctx, FetchRecord{TraceID: "b", Instrument: "BTC_USDT", Granularity: "M1", Direction: "older", Count: 50, Before: 1000, Bars: 0, RateLimited: true, Error: "upstream rate limited"})

	records, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	// Newest first.
	assert.Equal(t, "b", records[0].TraceID)
	assert.True(t, records[0].RateLimited)
	assert.Equal(t, "a", records[1].TraceID)
}

func TestRecentLimit(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		store.RecordFetch(ctx, FetchRecord{TraceID: "t", Instrument: "BTC_USDT", Granularity: "M1"})
	}
	records, err := store.Recent(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestNilStoreIsInert(t *testing.T) {
	var store *Store
	store.RecordFetch(context.Background(), FetchRecord{})
	records, err := store.Recent(context.Background(), 10)
	assert.NoError(t, err)
	assert.Nil(t, records)
	assert.NoError(t, store.Close())
}
