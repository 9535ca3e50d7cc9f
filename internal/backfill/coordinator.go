package backfill

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"chartfeed/internal/logger"
	"chartfeed/internal/market"
	"chartfeed/internal/metrics"
	"chartfeed/internal/store/journal"
)

// Direction labels which edge of a series a fetch extends.
type Direction string

const (
	DirectionInitial Direction = "initial"
	DirectionOlder   Direction = "older"
	DirectionNewer   Direction = "newer"
)

// Observer receives coordinator notices. All methods are called outside the
// coordinator's lock; implementations may call back into it.
type Observer interface {
	OnRateLimited(key market.SeriesKey, retryAfter time.Duration)
	OnFetchError(key market.SeriesKey, err error)
	OnBackfill(key market.SeriesKey, direction Direction, added int)
}

// Config tunes the coordinator. The edge threshold is a bar count: a visible
// edge within that many bars of the cached boundary triggers a fetch.
type Config struct {
	InitialCount      int
	BatchCount        int
	EdgeThresholdBars int
}

func (c Config) withDefaults() Config {
	if c.InitialCount <= 0 {
		c.InitialCount = 5000
	}
	if c.BatchCount <= 0 {
		c.BatchCount = 1000
	}
	if c.EdgeThresholdBars <= 0 {
		c.EdgeThresholdBars = 10
	}
	return c
}

type seriesState struct {
	active bool

	olderBusy      bool
	newerBusy      bool
	olderExhausted bool
	newerExhausted bool

	olderSuppressedUntil time.Time
	newerSuppressedUntil time.Time
}

// Coordinator translates visible-range signals from the chart into fetch
// decisions, keeping the cache filled just ahead of what the user can see.
// It guarantees at most one in-flight fetch per direction per series;
// qualifying signals during flight are dropped, not queued.
type Coordinator struct {
	cache  *market.SeriesCache
	source market.Source
	cfg    Config

	journal *journal.Store
	metrics *metrics.Metrics

	mu       sync.Mutex
	series   map[market.SeriesKey]*seriesState
	observer Observer

	now func() time.Time
}

type Option func(*Coordinator)

func WithJournal(j *journal.Store) Option {
	return func(c *Coordinator) { c.journal = j }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

func New(cache *market.SeriesCache, source market.Source, cfg Config, opts ...Option) *Coordinator {
	c := &Coordinator{
		cache:  cache,
		source: source,
		cfg:    cfg.withDefaults(),
		series: make(map[market.SeriesKey]*seriesState),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// SetObserver registers the notice sink. A nil observer is valid.
func (c *Coordinator) SetObserver(o Observer) {
	c.mu.Lock()
	c.observer = o
	c.mu.Unlock()
}

// LoadInitial fetches the most recent InitialCount bars for the series,
// merges them into the cache and (re)activates the series, resetting any
// prior exhaustion or suppression state. Expected once per series
// activation (chart mount / instrument switch).
func (c *Coordinator) LoadInitial(ctx context.Context, instrument, granularity string) error {
	key := market.SeriesKey{Instrument: instrument, Granularity: granularity}
	bars, err := c.fetch(ctx, key, DirectionInitial, market.FetchRequest{
		Instrument:  instrument,
		Granularity: granularity,
		Count:       c.cfg.InitialCount,
	})
	if err != nil {
		c.notifyError(key, err)
		return err
	}
	c.cache.Merge(instrument, granularity, bars)
	c.metrics.SetCachedBars(instrument, granularity, c.cache.Len(instrument, granularity))

	c.mu.Lock()
	c.series[key] = &seriesState{active: true}
	c.mu.Unlock()
	logger.Infof("[backfill] %s activated with %d bars: %s", key, len(bars), market.Candles(bars).Snapshot(granularity))
	return nil
}

// Deactivate marks the series inactive so late-resolving fetches for it are
// dropped instead of merged. The cached bars stay available for reads.
func (c *Coordinator) Deactivate(instrument, granularity string) {
	key := market.SeriesKey{Instrument: instrument, Granularity: granularity}
	c.mu.Lock()
	if st := c.series[key]; st != nil {
		st.active = false
	}
	c.mu.Unlock()
}

// OnVisibleRangeChanged is the chart view's visible-range signal. from/to
// are Unix seconds of the left/right edge of the visible window. When an
// edge comes within EdgeThresholdBars of the cached boundary, a backfill in
// that direction is started synchronously in the caller's goroutine.
func (c *Coordinator) OnVisibleRangeChanged(ctx context.Context, instrument, granularity string, from, to int64) {
	rng, ok := c.cache.TimeRange(instrument, granularity)
	if !ok {
		return
	}
	dur, ok := market.GranularityDuration(granularity)
	if !ok {
		return
	}
	threshold := int64(c.cfg.EdgeThresholdBars) * int64(dur/time.Second)

	key := market.SeriesKey{Instrument: instrument, Granularity: granularity}
	if from <= rng.Oldest+threshold {
		c.maybeBackfill(ctx, key, DirectionOlder, rng)
	}
	if to >= rng.Newest-threshold {
		c.maybeBackfill(ctx, key, DirectionNewer, rng)
	}
}

// maybeBackfill runs one guarded fetch-and-merge for the given direction.
func (c *Coordinator) maybeBackfill(ctx context.Context, key market.SeriesKey, dir Direction, rng market.TimeRange) {
	if !c.acquire(key, dir) {
		return
	}
	defer c.release(key, dir)

	req := market.FetchRequest{
		Instrument:  key.Instrument,
		Granularity: key.Granularity,
		Count:       c.cfg.BatchCount,
	}
	if dir == DirectionOlder {
		req.Before = rng.Oldest
	}

	bars, err := c.fetch(ctx, key, dir, req)
	if err != nil {
		if rl, ok := market.AsRateLimited(err); ok {
			c.suppress(key, dir, rl.RetryAfter)
		}
		c.notifyError(key, err)
		return
	}

	added := countNew(bars, dir, rng)
	if !c.stillActive(key) {
		logger.Debugf("[backfill] %s no longer active, dropping %d bars", key, len(bars))
		return
	}
	// Merge even when nothing is new: duplicates refresh the boundary bar,
	// which may have been incomplete at initial load.
	c.cache.Merge(key.Instrument, key.Granularity, bars)
	c.metrics.SetCachedBars(key.Instrument, key.Granularity, c.cache.Len(key.Instrument, key.Granularity))

	if added == 0 {
		c.exhaust(key, dir)
		logger.Debugf("[backfill] %s %s exhausted at %d", key, dir, boundary(dir, rng))
	} else {
		c.metrics.ObserveBackfill(string(dir))
	}
	c.notifyBackfill(key, dir, added)
}

// fetch runs one upstream call and journals the outcome.
func (c *Coordinator) fetch(ctx context.Context, key market.SeriesKey, dir Direction, req market.FetchRequest) ([]market.Candle, error) {
	bars, err := c.source.Fetch(ctx, req)
	c.metrics.ObserveFetch(string(dir), err)

	rec := journal.FetchRecord{
		TraceID:     uuid.NewString(),
		Instrument:  key.Instrument,
		Granularity: key.Granularity,
		Direction:   string(dir),
		Count:       req.Count,
		Before:      req.Before,
		Bars:        len(bars),
	}
	if err != nil {
		rec.Error = err.Error()
		_, rec.RateLimited = market.AsRateLimited(err)
	}
	c.journal.RecordFetch(ctx, rec)
	return bars, err
}

func (c *Coordinator) acquire(key market.SeriesKey, dir Direction) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.series[key]
	if st == nil || !st.active {
		return false
	}
	now := c.now()
	switch dir {
	case DirectionOlder:
		if st.olderBusy || st.olderExhausted || now.Before(st.olderSuppressedUntil) {
			return false
		}
		st.olderBusy = true
	case DirectionNewer:
		if st.newerBusy || st.newerExhausted || now.Before(st.newerSuppressedUntil) {
			return false
		}
		st.newerBusy = true
	default:
		return false
	}
	return true
}

func (c *Coordinator) release(key market.SeriesKey, dir Direction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.series[key]
	if st == nil {
		return
	}
	if dir == DirectionOlder {
		st.olderBusy = false
	} else {
		st.newerBusy = false
	}
}

func (c *Coordinator) exhaust(key market.SeriesKey, dir Direction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.series[key]
	if st == nil {
		return
	}
	if dir == DirectionOlder {
		st.olderExhausted = true
	} else {
		st.newerExhausted = true
	}
}

func (c *Coordinator) suppress(key market.SeriesKey, dir Direction, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.series[key]
	if st == nil {
		return
	}
	until := c.now().Add(d)
	if dir == DirectionOlder {
		st.olderSuppressedUntil = until
	} else {
		st.newerSuppressedUntil = until
	}
}

func (c *Coordinator) stillActive(key market.SeriesKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.series[key]
	return st != nil && st.active
}

func (c *Coordinator) observerSnapshot() Observer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.observer
}

func (c *Coordinator) notifyError(key market.SeriesKey, err error) {
	o := c.observerSnapshot()
	if rl, ok := market.AsRateLimited(err); ok {
		logger.Warnf("[backfill] %s rate limited, retry in %s", key, rl.RetryAfter)
		if o != nil {
			o.OnRateLimited(key, rl.RetryAfter)
		}
		return
	}
	logger.Warnf("[backfill] %s fetch failed: %v", key, err)
	if o != nil {
		o.OnFetchError(key, err)
	}
}

func (c *Coordinator) notifyBackfill(key market.SeriesKey, dir Direction, added int) {
	if o := c.observerSnapshot(); o != nil {
		o.OnBackfill(key, dir, added)
	}
}

// countNew counts fetched bars strictly outside the cached range in the
// fetch direction; overlapping bars only refresh existing slots.
func countNew(bars []market.Candle, dir Direction, rng market.TimeRange) int {
	n := 0
	for _, b := range bars {
		if dir == DirectionOlder && b.Time < rng.Oldest {
			n++
		}
		if dir == DirectionNewer && b.Time > rng.Newest {
			n++
		}
	}
	return n
}

func boundary(dir Direction, rng market.TimeRange) int64 {
	if dir == DirectionOlder {
		return rng.Oldest
	}
	return rng.Newest
}
