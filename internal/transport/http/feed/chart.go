package feedhttp

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// handleChart renders a server-side kline snapshot of one cached series.
// It is a diagnostics page, not the dashboard chart.
func (r *Router) handleChart(c *gin.Context) {
	instrument, granularity, ok := r.seriesParams(c)
	if !ok {
		return
	}
	bars, ok := r.Cache.Get(instrument, granularity)
	if !ok || len(bars) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "series not loaded"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "500"))
	if limit <= 0 {
		limit = 500
	}
	if len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}

	x := make([]string, 0, len(bars))
	y := make([]opts.KlineData, 0, len(bars))
	for _, b := range bars {
		x = append(x, time.Unix(b.Time, 0).UTC().Format("01-02 15:04"))
		y = append(y, opts.KlineData{Value: [4]float64{b.Open, b.Close, b.Low, b.High}})
	}

	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: instrument + " " + granularity}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	kline.SetXAxis(x).AddSeries("candles", y)

	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := kline.Render(c.Writer); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
