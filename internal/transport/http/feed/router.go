package feedhttp

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"chartfeed/internal/analysis/indicator"
	"chartfeed/internal/backfill"
	"chartfeed/internal/logger"
	"chartfeed/internal/market"
	"chartfeed/internal/store/journal"
)

// Router holds the /api handlers.
type Router struct {
	Cache       *market.SeriesCache
	Coordinator *backfill.Coordinator
	Journal     *journal.Store

	notices *noticeLog
}

func NewRouter(cache *market.SeriesCache, coordinator *backfill.Coordinator, logs *journal.Store) *Router {
	return &Router{
		Cache:       cache,
		Coordinator: coordinator,
		Journal:     logs,
		notices:     newNoticeLog(64),
	}
}

// Register mounts the API routes under the given group.
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/series", r.handleSeriesList)
	group.GET("/series/candles", r.handleCandles)
	group.GET("/series/range", r.handleRange)
	group.GET("/series/summary", r.handleSummary)
	group.GET("/series/indicators", r.handleIndicators)
	group.POST("/series/load", r.handleLoad)
	group.POST("/series/viewport", r.handleViewport)
	group.GET("/fetches", r.handleFetches)
	group.GET("/notices", r.handleNotices)
}

func (r *Router) seriesParams(c *gin.Context) (string, string, bool) {
	instrument := strings.ToUpper(strings.TrimSpace(c.Query("instrument")))
	granularity := market.NormalizeGranularity(c.Query("granularity"))
	if instrument == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "instrument is required"})
		return "", "", false
	}
	if !market.ValidGranularity(granularity) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown granularity " + granularity})
		return "", "", false
	}
	return instrument, granularity, true
}

func (r *Router) handleSeriesList(c *gin.Context) {
	type seriesInfo struct {
		market.SeriesKey
		Bars  int               `json:"bars"`
		Range *market.TimeRange `json:"range,omitempty"`
	}
	keys := r.Cache.Keys()
	out := make([]seriesInfo, 0, len(keys))
	for _, k := range keys {
		info := seriesInfo{SeriesKey: k, Bars: r.Cache.Len(k.Instrument, k.Granularity)}
		if rng, ok := r.Cache.TimeRange(k.Instrument, k.Granularity); ok {
			info.Range = &rng
		}
		out = append(out, info)
	}
	c.JSON(http.StatusOK, gin.H{"series": out})
}

func (r *Router) handleCandles(c *gin.Context) {
	instrument, granularity, ok := r.seriesParams(c)
	if !ok {
		return
	}
	bars, ok := r.Cache.Get(instrument, granularity)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "series not loaded"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "500"))
	if limit <= 0 {
		limit = 500
	}
	if limit > 5000 {
		limit = 5000
	}
	if len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	c.JSON(http.StatusOK, gin.H{
		"instrument":  instrument,
		"granularity": granularity,
		"candles":     bars,
	})
}

func (r *Router) handleRange(c *gin.Context) {
	instrument, granularity, ok := r.seriesParams(c)
	if !ok {
		return
	}
	rng, ok := r.Cache.TimeRange(instrument, granularity)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "series not loaded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"instrument":  instrument,
		"granularity": granularity,
		"oldest":      rng.Oldest,
		"newest":      rng.Newest,
		"bars":        r.Cache.Len(instrument, granularity),
	})
}

func (r *Router) handleSummary(c *gin.Context) {
	instrument, granularity, ok := r.seriesParams(c)
	if !ok {
		return
	}
	bars, ok := r.Cache.Get(instrument, granularity)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "series not loaded"})
		return
	}
	summary, ok := market.Summarize(instrument, granularity, bars)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "series is empty"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

func (r *Router) handleIndicators(c *gin.Context) {
	instrument, granularity, ok := r.seriesParams(c)
	if !ok {
		return
	}
	bars, ok := r.Cache.Get(instrument, granularity)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "series not loaded"})
		return
	}
	period, _ := strconv.Atoi(c.DefaultQuery("period", "14"))
	rep, err := indicator.Compute(instrument, granularity, bars, period)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"indicators": rep})
}

type loadRequest struct {
	Instrument  string `json:"instrument"`
	Granularity string `json:"granularity"`
}

func (r *Router) handleLoad(c *gin.Context) {
	var req loadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	instrument := strings.ToUpper(strings.TrimSpace(req.Instrument))
	granularity := market.NormalizeGranularity(req.Granularity)
	if instrument == "" || !market.ValidGranularity(granularity) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "instrument and a valid granularity are required"})
		return
	}
	if err := r.Coordinator.LoadInitial(c.Request.Context(), instrument, granularity); err != nil {
		if rl, ok := market.AsRateLimited(err); ok {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":          err.Error(),
				"retry_after_ms": rl.RetryAfter.Milliseconds(),
			})
			return
		}
		logger.Errorf("[api] initial load failed %s@%s: %v", instrument, granularity, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"bars":   r.Cache.Len(instrument, granularity),
	})
}

type viewportRequest struct {
	Instrument  string `json:"instrument"`
	Granularity string `json:"granularity"`
	From        int64  `json:"from"`
	To          int64  `json:"to"`
}

func (r *Router) handleViewport(c *gin.Context) {
	var req viewportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	instrument := strings.ToUpper(strings.TrimSpace(req.Instrument))
	granularity := market.NormalizeGranularity(req.Granularity)
	if instrument == "" || !market.ValidGranularity(granularity) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "instrument and a valid granularity are required"})
		return
	}
	if req.From > req.To {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from must not exceed to"})
		return
	}
	r.Coordinator.OnVisibleRangeChanged(c.Request.Context(), instrument, granularity, req.From, req.To)
	rng, _ := r.Cache.TimeRange(instrument, granularity)
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"oldest": rng.Oldest,
		"newest": rng.Newest,
		"bars":   r.Cache.Len(instrument, granularity),
	})
}

func (r *Router) handleFetches(c *gin.Context) {
	if r.Journal == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "fetch journal not enabled"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	records, err := r.Journal.Recent(c.Request.Context(), limit)
	if err != nil {
		logger.Errorf("[api] fetch journal list failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"fetches": records})
}

func (r *Router) handleNotices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"notices": r.notices.snapshot()})
}

// Notice is one coordinator event surfaced to the dashboard: rate limiting
// presents as a temporary self-resolving condition, fetch failures as
// dismissible errors that leave loaded data intact.
type Notice struct {
	Kind         string    `json:"kind"`
	Series       string    `json:"series"`
	Direction    string    `json:"direction,omitempty"`
	Added        int       `json:"added,omitempty"`
	RetryAfterMs int64     `json:"retry_after_ms,omitempty"`
	Error        string    `json:"error,omitempty"`
	At           time.Time `json:"at"`
}

type noticeLog struct {
	mu  sync.Mutex
	max int
	log []Notice
}

func newNoticeLog(max int) *noticeLog {
	return &noticeLog{max: max}
}

func (n *noticeLog) push(notice Notice) {
	notice.At = time.Now()
	n.mu.Lock()
	n.log = append(n.log, notice)
	if len(n.log) > n.max {
		n.log = n.log[len(n.log)-n.max:]
	}
	n.mu.Unlock()
}

func (n *noticeLog) snapshot() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Notice, len(n.log))
	copy(out, n.log)
	return out
}

func (n *noticeLog) OnRateLimited(key market.SeriesKey, retryAfter time.Duration) {
	n.push(Notice{Kind: "rate_limited", Series: key.String(), RetryAfterMs: retryAfter.Milliseconds()})
}

func (n *noticeLog) OnFetchError(key market.SeriesKey, err error) {
	n.push(Notice{Kind: "fetch_error", Series: key.String(), Error: err.Error()})
}

func (n *noticeLog) OnBackfill(key market.SeriesKey, direction backfill.Direction, added int) {
	n.push(Notice{Kind: "backfill", Series: key.String(), Direction: string(direction), Added: added})
}
