package binance

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	binance "github.com/adshao/go-binance/v2"

	"chartfeed/internal/logger"
	"chartfeed/internal/market"
)

const streamBufSize = 256

// Binance has no sub-minute or exotic granularities; anything unmapped is
// rejected up front.
var intervalByGranularity = map[string]string{
	"M1": "1m", "M5": "5m", "M15": "15m", "M30": "30m",
	"H1": "1h", "H2": "2h", "H4": "4h", "H6": "6h", "H8": "8h", "H12": "12h",
	"D": "1d", "W": "1w", "M": "1M",
}

// Source adapts Binance spot klines to the candle source contract, both for
// one-shot fetches and for live kline streaming.
type Source struct {
	client *binance.Client
}

func New(apiKey, secret string) *Source {
	return &Source{client: binance.NewClient(apiKey, secret)}
}

func (s *Source) Name() string { return "binance" }

func (s *Source) Fetch(ctx context.Context, req market.FetchRequest) ([]market.Candle, error) {
	interval, ok := intervalByGranularity[market.NormalizeGranularity(req.Granularity)]
	if !ok {
		return nil, &market.FetchError{Cause: fmt.Errorf("granularity %q not supported by binance", req.Granularity)}
	}
	svc := s.client.NewKlinesService().Symbol(toSymbol(req.Instrument)).Interval(interval)
	if req.Count > 0 {
		svc = svc.Limit(req.Count)
	}
	if req.Before > 0 {
		// Before is exclusive in seconds; EndTime is inclusive milliseconds.
		svc = svc.EndTime(req.Before*1000 - 1)
	}
	kls, err := svc.Do(ctx)
	if err != nil {
		return nil, &market.FetchError{Cause: err}
	}
	out := make([]market.Candle, 0, len(kls))
	for _, k := range kls {
		out = append(out, market.Candle{
			Time:  k.OpenTime / 1000,
			Open:  parseFloat(k.Open),
			High:  parseFloat(k.High),
			Low:   parseFloat(k.Low),
			Close: parseFloat(k.Close),
		})
	}
	return out, nil
}

// Stream subscribes the kline websocket for one series and converts updates
// into candle events. The channel closes when ctx is cancelled or the
// websocket terminates.
func (s *Source) Stream(ctx context.Context, instrument, granularity string) (<-chan market.CandleEvent, error) {
	interval, ok := intervalByGranularity[market.NormalizeGranularity(granularity)]
	if !ok {
		return nil, fmt.Errorf("granularity %q not supported by binance", granularity)
	}
	out := make(chan market.CandleEvent, streamBufSize)

	handler := func(ev *binance.WsKlineEvent) {
		if ev == nil {
			return
		}
		evt := market.CandleEvent{
			Instrument:  instrument,
			Granularity: market.NormalizeGranularity(granularity),
			Candle: market.Candle{
				Time:  ev.Kline.StartTime / 1000,
				Open:  parseFloat(ev.Kline.Open),
				High:  parseFloat(ev.Kline.High),
				Low:   parseFloat(ev.Kline.Low),
				Close: parseFloat(ev.Kline.Close),
			},
		}
		select {
		case out <- evt:
		default:
			logger.Warnf("[binance] kline channel full, drop %s %s", instrument, granularity)
		}
	}
	errHandler := func(err error) {
		logger.Warnf("[binance] kline stream %s %s: %v", instrument, granularity, err)
	}

	doneC, stopC, err := binance.WsKlineServe(toSymbol(instrument), interval, handler, errHandler)
	if err != nil {
		return nil, err
	}
	go func() {
		defer close(out)
		select {
		case <-ctx.Done():
			close(stopC)
			<-doneC
		case <-doneC:
		}
	}()
	return out, nil
}

// toSymbol maps dashboard instrument names (BTC_USDT) to exchange symbols
// (BTCUSDT).
func toSymbol(instrument string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(instrument), "_", ""))
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}
