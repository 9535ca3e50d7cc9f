package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"chartfeed/internal/market"
)

// Metrics exposes the fetch/backfill counters and cache gauges on a
// Prometheus registry. A nil *Metrics is valid and records nothing, so the
// core packages can stay wiring-agnostic.
type Metrics struct {
	fetchTotal    *prometheus.CounterVec
	rateLimited   prometheus.Counter
	backfillTotal *prometheus.CounterVec
	cachedBars    *prometheus.GaugeVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		fetchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chartfeed_fetch_total",
			Help: "Candle fetches by direction and result.",
		}, []string{"direction", "result"}),
		rateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "chartfeed_rate_limited_total",
			Help: "Times the upstream signalled rate limiting.",
		}),
		backfillTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chartfeed_backfill_total",
			Help: "Completed backfill merges by direction.",
		}, []string{"direction"}),
		cachedBars: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "chartfeed_cached_bars",
			Help: "Bars currently cached per series.",
		}, []string{"instrument", "granularity"}),
	}
}

func (m *Metrics) ObserveFetch(direction string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
		if _, ok := market.AsRateLimited(err); ok {
			result = "rate_limited"
			m.rateLimited.Inc()
		}
	}
	m.fetchTotal.WithLabelValues(direction, result).Inc()
}

func (m *Metrics) ObserveBackfill(direction string) {
	if m == nil {
		return
	}
	m.backfillTotal.WithLabelValues(direction).Inc()
}

func (m *Metrics) SetCachedBars(instrument, granularity string, n int) {
	if m == nil {
		return
	}
	m.cachedBars.WithLabelValues(instrument, granularity).Set(float64(n))
}
